package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// SettingsRepository stores one jsonb settings document per business. Only the automation
// and company sections are read here; other sections are left untouched on write.
type SettingsRepository struct {
	db db.DB
}

func NewSettingsRepository(pool db.DB) *SettingsRepository {
	return &SettingsRepository{db: pool}
}

// Get returns the normalized settings, or defaults when the business never saved any.
func (r *SettingsRepository) Get(ctx context.Context, businessID string) (model.Settings, error) {
	settings := model.Settings{BusinessID: businessID, Automation: model.DefaultAutomationSettings()}

	var raw []byte
	err := r.db.QueryRow(ctx, `
		SELECT document
		FROM business_settings
		WHERE business_id = $1
	`, businessID).Scan(&raw)
	if err != nil {
		if IsNotFound(err) {
			return settings, nil
		}
		return model.Settings{}, err
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return model.Settings{}, fmt.Errorf("decode settings for %s: %w", businessID, err)
		}
	}
	settings.BusinessID = businessID
	settings.Automation.Normalize()
	return settings, nil
}

func (r *SettingsRepository) PutAutomation(ctx context.Context, businessID string, s model.AutomationSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO business_settings (business_id, document)
		VALUES ($1, jsonb_build_object('automation', $2::jsonb))
		ON CONFLICT (business_id) DO UPDATE
		SET document = jsonb_set(business_settings.document, '{automation}', $2::jsonb),
			updated_at = now()
	`, businessID, string(raw))
	return err
}
