package model

import "time"

// Trigger names the automation rule that produced a message.
type Trigger string

const (
	TriggerReminder Trigger = "reminder"
	TriggerNoShow   Trigger = "no_show"
)

const (
	// AutomationSenderLabel is shown as the author of every automated message.
	AutomationSenderLabel   = "Système automatique"
	MessageSourceAutomation = "automation"
)

type Conversation struct {
	ID            string
	BusinessID    string
	ClientID      string
	ClientName    string
	Channel       Channel
	Subject       string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

type ConversationMessage struct {
	ID             string
	ConversationID string
	SenderLabel    string
	Source         string
	Channel        Channel
	Content        string
	SentAt         time.Time
}
