package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
)

// Message is one automated message addressed to a client.
type Message struct {
	BusinessID     string
	AppointmentID  string
	ClientID       string
	ClientName     string
	ConversationID string // the appointment's linked thread, if any
	Channel        model.Channel
	Content        string
	Trigger        model.Trigger
	Relance        int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type ConversationStore interface {
	ListByClient(ctx context.Context, businessID, clientID string, channel model.Channel) ([]model.Conversation, error)
	Create(ctx context.Context, q db.Querier, c model.Conversation) error
	Append(ctx context.Context, q db.Querier, msg model.ConversationMessage) error
}

type AppointmentLinker interface {
	LinkConversation(ctx context.Context, q db.Querier, businessID, id, conversationID string) error
}

type EventWriter interface {
	Insert(ctx context.Context, q db.Querier, evt outbox.Event) error
}

// ConversationDispatcher writes automated messages into the client's inbox thread and
// queues an automation.message.dispatched event for the delivery services.
type ConversationDispatcher struct {
	db            db.DB
	conversations ConversationStore
	appointments  AppointmentLinker
	events        EventWriter
	logger        *slog.Logger
	now           func() time.Time
}

func NewConversationDispatcher(pool db.DB, conversations ConversationStore, appointments AppointmentLinker, events EventWriter, logger *slog.Logger) *ConversationDispatcher {
	return &ConversationDispatcher{
		db:            pool,
		conversations: conversations,
		appointments:  appointments,
		events:        events,
		logger:        logger,
		now:           time.Now,
	}
}

func (d *ConversationDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if msg.ClientID == "" {
		return errors.New("message has no client")
	}
	if !msg.Channel.Valid() {
		msg.Channel = model.ChannelWhatsApp
	}

	conversationID := msg.ConversationID
	create := false
	if conversationID == "" {
		existing, err := d.conversations.ListByClient(ctx, msg.BusinessID, msg.ClientID, msg.Channel)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(existing) > 0 {
			conversationID = existing[0].ID
		} else {
			conversationID = uuid.NewString()
			create = true
		}
	}

	sentAt := d.now().UTC()
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if create {
		if err := d.conversations.Create(ctx, tx, model.Conversation{
			ID:            conversationID,
			BusinessID:    msg.BusinessID,
			ClientID:      msg.ClientID,
			ClientName:    msg.ClientName,
			Channel:       msg.Channel,
			Subject:       msg.ClientName,
			LastMessageAt: sentAt,
		}); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
	}

	messageID := uuid.NewString()
	if err := d.conversations.Append(ctx, tx, model.ConversationMessage{
		ID:             messageID,
		ConversationID: conversationID,
		SenderLabel:    model.AutomationSenderLabel,
		Source:         model.MessageSourceAutomation,
		Channel:        msg.Channel,
		Content:        msg.Content,
		SentAt:         sentAt,
	}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if msg.ConversationID == "" && msg.AppointmentID != "" && d.appointments != nil {
		if err := d.appointments.LinkConversation(ctx, tx, msg.BusinessID, msg.AppointmentID, conversationID); err != nil {
			return fmt.Errorf("link conversation: %w", err)
		}
	}

	payload, err := json.Marshal(map[string]any{
		"message_id":      messageID,
		"conversation_id": conversationID,
		"appointment_id":  msg.AppointmentID,
		"business_id":     msg.BusinessID,
		"client_id":       msg.ClientID,
		"channel":         string(msg.Channel),
		"trigger":         string(msg.Trigger),
		"relance_number":  msg.Relance,
		"content":         msg.Content,
		"sent_at":         sentAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := d.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "conversation",
		AggregateID:   conversationID,
		EventType:     outbox.EventMessageDispatched,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	d.logger.Info("automated message dispatched",
		"appointment_id", msg.AppointmentID,
		"conversation_id", conversationID,
		"trigger", msg.Trigger,
		"channel", msg.Channel,
		"new_conversation", create,
	)
	return nil
}
