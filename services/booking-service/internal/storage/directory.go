package storage

import (
	"context"

	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// DirectoryRepository reads the staff roster and client directory of a business.
type DirectoryRepository struct {
	db db.DB
}

func NewDirectoryRepository(pool db.DB) *DirectoryRepository {
	return &DirectoryRepository{db: pool}
}

func (r *DirectoryRepository) ListStaff(ctx context.Context, businessID string) ([]model.Staff, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name
		FROM staff
		WHERE business_id = $1 AND is_active
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return staff, nil
}

func (r *DirectoryRepository) GetClient(ctx context.Context, businessID, id string) (model.Client, error) {
	var c model.Client
	err := r.db.QueryRow(ctx, `
		SELECT id, name
		FROM clients
		WHERE business_id = $1 AND id = $2
	`, businessID, id).Scan(&c.ID, &c.Name)
	return c, err
}
