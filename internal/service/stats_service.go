// internal/service/stats_service.go
package service

import (
	"math"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// CampaignStats is a point-in-time snapshot over the ledger. P50MS/P95MS are
// nil until at least one message has been sent.
type CampaignStats struct {
	Total  int    `json:"total"`
	Queued int    `json:"queued"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
	P50MS  *int64 `json:"p50_ms"`
	P95MS  *int64 `json:"p95_ms"`
}

// StatsService computes aggregate counts and latency percentiles. Read-only
// and safe to call while dispatch is still in flight; callers poll.
type StatsService struct {
	MessageRepo repository.MessageRepositoryInterface
}

func (s *StatsService) ComputeStats(campaignID int64) (*CampaignStats, error) {
	counts, err := s.MessageRepo.CountsByStatus(campaignID)
	if err != nil {
		return nil, err
	}

	stats := &CampaignStats{
		Queued: counts[model.MessageStatusQueued],
		Sent:   counts[model.MessageStatusSent],
		Failed: counts[model.MessageStatusFailed],
	}
	stats.Total = stats.Queued + stats.Sent + stats.Failed

	latencies, err := s.MessageRepo.SentLatencies(campaignID)
	if err != nil {
		return nil, err
	}
	stats.P50MS = NearestRank(latencies, 0.50)
	stats.P95MS = NearestRank(latencies, 0.95)
	return stats, nil
}

// NearestRank returns the nearest-rank percentile of an ascending-sorted
// sequence: the value at rank ceil(p*n), 1-based. Nil when the sequence is
// empty. Computed here rather than in SQL so the definition is exact and
// engine-independent.
func NearestRank(sorted []int64, p float64) *int64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	rank := int(math.Ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	v := sorted[rank-1]
	return &v
}
