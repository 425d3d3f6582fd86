package storage

import (
	"context"

	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// ConversationRepository backs the unified inbox threads automation writes into.
type ConversationRepository struct {
	db db.DB
}

func NewConversationRepository(pool db.DB) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

// ListByClient returns the client's conversations on channel, most recently active first.
func (r *ConversationRepository) ListByClient(ctx context.Context, businessID, clientID string, channel model.Channel) ([]model.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, business_id, client_id, client_name, channel, subject, last_message_at, created_at
		FROM conversations
		WHERE business_id = $1 AND client_id = $2 AND channel = $3
		ORDER BY last_message_at DESC
	`, businessID, clientID, string(channel))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.ClientID, &c.ClientName, &c.Channel, &c.Subject, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return convs, nil
}

func (r *ConversationRepository) Create(ctx context.Context, q db.Querier, c model.Conversation) error {
	_, err := q.Exec(ctx, `
		INSERT INTO conversations (id, business_id, client_id, client_name, channel, subject, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.BusinessID, c.ClientID, c.ClientName, string(c.Channel), c.Subject, c.LastMessageAt)
	return err
}

// Append adds msg to its conversation and bumps the conversation's activity time.
func (r *ConversationRepository) Append(ctx context.Context, q db.Querier, msg model.ConversationMessage) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, sender_label, source, channel, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ConversationID, msg.SenderLabel, msg.Source, string(msg.Channel), msg.Content, msg.SentAt); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = $2
		WHERE id = $1
	`, msg.ConversationID, msg.SentAt)
	return err
}
