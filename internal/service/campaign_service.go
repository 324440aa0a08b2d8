// internal/service/campaign_service.go
package service

import (
	"log/slog"
	"strings"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// DefaultPreviewLimit caps how many rendered bodies a preview returns.
const DefaultPreviewLimit = 10

// CampaignService is the orchestrator: it composes the segment evaluator,
// template renderer, campaign store, message ledger and work queue behind the
// external API.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	UserRepo     repository.UserRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Queue        queue.Queue
	Stats        *StatsService
	Log          *slog.Logger
}

type PreviewItem struct {
	User model.User `json:"user"`
	Body string     `json:"body"`
}

// PreviewResult reports the full match count even when the rendered list is
// truncated to the limit.
type PreviewResult struct {
	Count    int           `json:"count"`
	Previews []PreviewItem `json:"previews"`
}

type SendResult struct {
	CampaignID    int64  `json:"campaign_id"`
	EnqueuedCount int    `json:"enqueued_count"`
	Status        string `json:"status"`
}

func (s *CampaignService) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// CreateCampaign validates and persists a new draft campaign. The segment
// rule may be empty (all users).
func (s *CampaignService) CreateCampaign(name, template, segmentRule string) (*model.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidation("name", "must not be empty")
	}
	if strings.TrimSpace(template) == "" {
		return nil, appErrors.NewValidation("template", "must not be empty")
	}

	c := &model.Campaign{
		Name:        name,
		Template:    template,
		SegmentRule: strings.TrimSpace(segmentRule),
		Status:      model.CampaignStatusDraft,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) GetCampaign(id int64) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

// ListCampaigns fetches campaigns with pagination, newest first.
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.List(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return campaigns, pagination, nil
}

// Preview resolves the campaign's segment and renders the template for the
// first limit matches. Read-only: the ledger is never touched.
func (s *CampaignService) Preview(id int64, limit int) (*PreviewResult, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	users, err := s.UserRepo.ListAll()
	if err != nil {
		return nil, err
	}
	matched := ResolveSegment(campaign.SegmentRule, users)

	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	result := &PreviewResult{
		Count:    len(matched),
		Previews: []PreviewItem{},
	}
	for i := range matched {
		if i >= limit {
			break
		}
		result.Previews = append(result.Previews, PreviewItem{
			User: matched[i],
			Body: RenderTemplate(campaign.Template, &matched[i]),
		})
	}
	return result, nil
}

// Send enumerates the segment, inserts one ledger row per recipient and
// enqueues one work item per newly inserted row, then flips the campaign to
// sending. Idempotent at two levels: a non-draft campaign is a no-op, and
// rows that already exist are skipped by the ledger's uniqueness constraint,
// so a partial retry of this very call never duplicates work.
func (s *CampaignService) Send(id int64) (*SendResult, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if campaign.Status != model.CampaignStatusDraft {
		return &SendResult{CampaignID: id, EnqueuedCount: 0, Status: campaign.Status}, nil
	}

	users, err := s.UserRepo.ListAll()
	if err != nil {
		return nil, err
	}
	matched := ResolveSegment(campaign.SegmentRule, users)

	enqueued := 0
	for i := range matched {
		msg, inserted, err := s.MessageRepo.Insert(id, matched[i].ID)
		if err != nil {
			s.logger().Error("insert ledger row failed",
				slog.Int64("campaign_id", id),
				slog.Int64("user_id", matched[i].ID),
				slog.Any("error", err))
			continue
		}
		if !inserted {
			// Row exists from an earlier send; its work item is already out.
			continue
		}
		if err := s.Queue.Publish(queue.TopicCampaignSends, msg.ID); err != nil {
			s.logger().Error("enqueue failed", slog.Int64("message_id", msg.ID), slog.Any("error", err))
			continue
		}
		enqueued++
	}

	if _, err := s.CampaignRepo.UpdateStatusFrom(id, model.CampaignStatusDraft, model.CampaignStatusSending); err != nil {
		return nil, err
	}
	// Workers may have already drained every row while the campaign was still
	// draft, in which case their completion checks no-opped. Re-check now that
	// the campaign is sending; this also covers the empty segment, which is
	// vacuously complete.
	if _, err := s.completeIfDone(id); err != nil {
		return nil, err
	}

	refreshed, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return &SendResult{CampaignID: id, EnqueuedCount: enqueued, Status: refreshed.Status}, nil
}

// ComputeStats delegates to the stats aggregator after checking the campaign
// exists.
func (s *CampaignService) ComputeStats(id int64) (*CampaignStats, error) {
	if _, err := s.CampaignRepo.GetByID(id); err != nil {
		return nil, err
	}
	return s.Stats.ComputeStats(id)
}

// Messages returns the campaign's ledger rows joined with recipient identity,
// id ascending.
func (s *CampaignService) Messages(id int64) ([]model.MessageWithUser, error) {
	if _, err := s.CampaignRepo.GetByID(id); err != nil {
		return nil, err
	}
	return s.MessageRepo.ListByCampaign(id)
}

// OnMessageTerminal is called by the dispatch pool after a message reaches a
// terminal state. When the last queued row is gone it completes the campaign;
// the conditional update keeps concurrent observers from double-transitioning.
func (s *CampaignService) OnMessageTerminal(campaignID int64) {
	moved, err := s.completeIfDone(campaignID)
	if err != nil {
		s.logger().Error("complete campaign failed", slog.Int64("campaign_id", campaignID), slog.Any("error", err))
		return
	}
	if moved {
		s.logger().Info("campaign complete", slog.Int64("campaign_id", campaignID))
	}
}

// completeIfDone flips sending -> sent once no non-terminal ledger rows
// remain. Both the send path and the dispatch pool funnel through it: a
// worker that goes terminal while the campaign is still draft no-ops here,
// and the send path's re-check after the draft -> sending flip picks the
// completion up.
func (s *CampaignService) completeIfDone(campaignID int64) (bool, error) {
	remaining, err := s.MessageRepo.CountNonTerminal(campaignID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	return s.CampaignRepo.UpdateStatusFrom(campaignID, model.CampaignStatusSending, model.CampaignStatusSent)
}
