// internal/model/message.go
package model

import "time"

// Message statuses. queued -> sent and queued -> failed are the only
// observable transitions; sent and failed are terminal.
const (
	MessageStatusQueued = "queued"
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

// Message is one ledger row per (campaign, recipient) pair. The pair
// (campaign_id, user_id) is unique in the database; that constraint is the
// idempotency key for send.
type Message struct {
	ID                int64      `db:"id" json:"id"`
	CampaignID        int64      `db:"campaign_id" json:"campaign_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Status            string     `db:"status" json:"status"`
	AttemptCount      int        `db:"attempt_count" json:"attempt_count"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	LatencyMS         *int64     `db:"latency_ms" json:"latency_ms,omitempty"`
}

// Terminal reports whether the message can no longer change state.
func (m *Message) Terminal() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusFailed
}

// MessageWithUser is a ledger row joined with recipient identity, as served
// by GET /campaigns/{id}/messages.
type MessageWithUser struct {
	Message
	User User `json:"user"`
}
