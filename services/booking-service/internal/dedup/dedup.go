package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// Key identifies one automated send: a trigger for an appointment, and for reminders the
// relance number. No-show keys always use relance 0.
type Key struct {
	AppointmentID string
	Trigger       model.Trigger
	Relance       int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.AppointmentID, k.Trigger, k.Relance)
}

// Store records sends. Claim reports true only to the first caller for a key; the record is
// never released, so a failed delivery is not retried.
type Store interface {
	Claim(ctx context.Context, key Key) (bool, error)
}

// MemoryStore keeps claims for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	claimed map[Key]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claimed: make(map[Key]struct{})}
}

func (s *MemoryStore) Claim(_ context.Context, key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[key]; ok {
		return false, nil
	}
	s.claimed[key] = struct{}{}
	return true, nil
}
