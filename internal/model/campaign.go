// internal/model/campaign.go
package model

import "time"

// Campaign statuses. Status moves draft -> sending exactly once, and
// sending -> sent once every ledger row for the campaign is terminal.
const (
	CampaignStatusDraft   = "draft"
	CampaignStatusSending = "sending"
	CampaignStatusSent    = "sent"
)

type Campaign struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Template    string    `db:"template" json:"template"`
	SegmentRule string    `db:"segment_rule" json:"segment_rule"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
