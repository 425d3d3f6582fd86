package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call the API. An origin entry may be
// exact ("https://app.example.com"), "*", or a subdomain wildcard ("https://*.example.com")
// for per-business booking pages.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSPolicy covers the public booking page and the back office.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", BusinessIDHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:         10 * time.Minute,
	}
}

// BusinessIDHeader carries the tenant on API calls.
const BusinessIDHeader = "X-Business-Id"

type originRule struct {
	any    bool
	exact  string
	scheme string
	suffix string
}

func compileOrigins(origins []string) []originRule {
	var rules []originRule
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch {
		case o == "":
		case o == "*":
			rules = append(rules, originRule{any: true})
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			rules = append(rules, originRule{scheme: scheme + "://", suffix: host})
		default:
			rules = append(rules, originRule{exact: o})
		}
	}
	return rules
}

func (r originRule) matches(origin string) bool {
	switch {
	case r.any:
		return true
	case r.exact != "":
		return r.exact == origin
	default:
		rest, ok := strings.CutPrefix(origin, r.scheme)
		return ok && strings.HasSuffix(rest, r.suffix) && len(rest) > len(r.suffix)
	}
}

// WithCORS answers preflights and decorates responses for allowed origins. With no
// allowed origins it returns next unchanged.
func WithCORS(cfg CORSPolicy) Middleware {
	rules := compileOrigins(cfg.AllowedOrigins)
	if len(rules) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	methods := joinNonEmpty(cfg.AllowedMethods)
	headers := joinNonEmpty(cfg.AllowedHeaders)
	exposed := joinNonEmpty(cfg.ExposedHeaders)
	maxAge := int(cfg.MaxAge.Seconds())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			allowed := false
			wildcard := false
			lower := strings.ToLower(origin)
			for _, rule := range rules {
				if rule.matches(lower) {
					allowed, wildcard = true, rule.any
					break
				}
			}
			if !allowed {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			if wildcard && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if maxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
