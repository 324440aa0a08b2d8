// internal/repository/message_repository.go
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type MessageRepositoryInterface interface {
	// Insert creates the ledger row for (campaignID, userID) and reports
	// whether a row was actually inserted. A second insert for the same pair
	// is a benign no-op, enforced by the uq_campaign_user constraint.
	Insert(campaignID, userID int64) (*model.Message, bool, error)

	GetByID(id int64) (*model.Message, error)

	// MarkSent and MarkFailed only fire while the row is still queued, so a
	// terminal message never observably regresses.
	MarkSent(id int64, providerMessageID string, sentAt time.Time, latencyMS int64, attempts int) error
	MarkFailed(id int64, lastError string, attempts int) error

	// RecordAttempt bumps attempt_count and last_error on a transient failure
	// that will be retried; the row stays queued.
	RecordAttempt(id int64, lastError string, attempts int) error

	CountsByStatus(campaignID int64) (map[string]int, error)
	SentLatencies(campaignID int64) ([]int64, error)
	CountNonTerminal(campaignID int64) (int, error)
	ListByCampaign(campaignID int64) ([]model.MessageWithUser, error)
}

type MessageRepository struct {
	DB *sqlx.DB
}

func (r *MessageRepository) Insert(campaignID, userID int64) (*model.Message, bool, error) {
	var m model.Message
	err := r.DB.Get(&m, `
        INSERT INTO messages (campaign_id, user_id, status, attempt_count, created_at)
        VALUES ($1, $2, 'queued', 0, NOW())
        ON CONFLICT (campaign_id, user_id) DO NOTHING
        RETURNING id, campaign_id, user_id, status, attempt_count, last_error,
                  provider_message_id, created_at, sent_at, latency_ms
    `, campaignID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict: the row already exists from an earlier send.
			return nil, false, nil
		}
		return nil, false, err
	}
	return &m, true, nil
}

func (r *MessageRepository) GetByID(id int64) (*model.Message, error) {
	var m model.Message
	err := r.DB.Get(&m, `
        SELECT id, campaign_id, user_id, status, attempt_count, last_error,
               provider_message_id, created_at, sent_at, latency_ms
        FROM messages WHERE id = $1
    `, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) MarkSent(id int64, providerMessageID string, sentAt time.Time, latencyMS int64, attempts int) error {
	_, err := r.DB.Exec(`
        UPDATE messages
        SET status='sent', provider_message_id=$1, sent_at=$2, latency_ms=$3,
            attempt_count=$4, last_error=''
        WHERE id=$5 AND status='queued'
    `, providerMessageID, sentAt, latencyMS, attempts, id)
	return err
}

func (r *MessageRepository) MarkFailed(id int64, lastError string, attempts int) error {
	_, err := r.DB.Exec(`
        UPDATE messages
        SET status='failed', last_error=$1, attempt_count=$2
        WHERE id=$3 AND status='queued'
    `, lastError, attempts, id)
	return err
}

func (r *MessageRepository) RecordAttempt(id int64, lastError string, attempts int) error {
	_, err := r.DB.Exec(`
        UPDATE messages
        SET last_error=$1, attempt_count=$2
        WHERE id=$3 AND status='queued'
    `, lastError, attempts, id)
	return err
}

func (r *MessageRepository) CountsByStatus(campaignID int64) (map[string]int, error) {
	rows, err := r.DB.Query(`
        SELECT status, COUNT(*) FROM messages WHERE campaign_id=$1 GROUP BY status
    `, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		model.MessageStatusQueued: 0,
		model.MessageStatusSent:   0,
		model.MessageStatusFailed: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *MessageRepository) SentLatencies(campaignID int64) ([]int64, error) {
	latencies := []int64{}
	err := r.DB.Select(&latencies, `
        SELECT latency_ms FROM messages
        WHERE campaign_id=$1 AND status='sent' AND latency_ms IS NOT NULL
        ORDER BY latency_ms ASC
    `, campaignID)
	if err != nil {
		return nil, err
	}
	return latencies, nil
}

func (r *MessageRepository) CountNonTerminal(campaignID int64) (int, error) {
	var n int
	err := r.DB.Get(&n, `
        SELECT COUNT(*) FROM messages WHERE campaign_id=$1 AND status='queued'
    `, campaignID)
	return n, err
}

func (r *MessageRepository) ListByCampaign(campaignID int64) ([]model.MessageWithUser, error) {
	rows, err := r.DB.Query(`
        SELECT m.id, m.campaign_id, m.user_id, m.status, m.attempt_count,
               m.last_error, m.provider_message_id, m.created_at, m.sent_at, m.latency_ms,
               u.id, u.name, u.email, u.tags
        FROM messages m
        JOIN users u ON u.id = m.user_id
        WHERE m.campaign_id = $1
        ORDER BY m.id ASC
    `, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MessageWithUser{}
	for rows.Next() {
		var mw model.MessageWithUser
		if err := rows.Scan(
			&mw.ID, &mw.CampaignID, &mw.UserID, &mw.Status, &mw.AttemptCount,
			&mw.LastError, &mw.ProviderMessageID, &mw.CreatedAt, &mw.SentAt, &mw.LatencyMS,
			&mw.User.ID, &mw.User.Name, &mw.User.Email, &mw.User.Tags,
		); err != nil {
			return nil, err
		}
		out = append(out, mw)
	}
	return out, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
