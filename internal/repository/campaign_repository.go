// internal/repository/campaign_repository.go
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int64) (*model.Campaign, error)
	List(offset, limit int, status string) ([]*model.Campaign, int, error)

	// UpdateStatusFrom transitions a campaign's status only when it currently
	// holds the expected value, and reports whether the row changed. Status
	// transitions are conditional so concurrent callers can never move a
	// campaign backwards.
	UpdateStatusFrom(id int64, from, to string) (bool, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO campaigns (name, template, segment_rule, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.Name, c.Template, c.SegmentRule, c.Status, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.DB.Get(&c, `
        SELECT id, name, template, segment_rule, status, created_at
        FROM campaigns WHERE id = $1
    `, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) List(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, name, template, segment_rule, status, created_at FROM campaigns WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		query += " AND status=$1"
		countQuery += " AND status=$1"
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	if err := r.DB.Select(&campaigns, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.Get(&total, countQuery, args...); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatusFrom(id int64, from, to string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE campaigns SET status=$1 WHERE id=$2 AND status=$3
    `, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
