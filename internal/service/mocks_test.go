package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// --- in-memory user directory ---

type memUserRepo struct {
	users []model.User
}

func (m *memUserRepo) ListAll() ([]model.User, error) {
	out := make([]model.User, len(m.users))
	copy(out, m.users)
	return out, nil
}

func (m *memUserRepo) GetByID(id int64) (*model.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// --- in-memory campaign store ---

type memCampaignRepo struct {
	mu        sync.Mutex
	seq       int64
	campaigns map[int64]*model.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: map[int64]*model.Campaign{}}
}

func (m *memCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = m.seq
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memCampaignRepo) GetByID(id int64) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaignRepo) List(offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.Campaign{}
	for id := m.seq; id >= 1; id-- {
		c, ok := m.campaigns[id]
		if !ok {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memCampaignRepo) UpdateStatusFrom(id int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

// --- in-memory message ledger ---

type memMessageRepo struct {
	mu    sync.Mutex
	seq   int64
	byID  map[int64]*model.Message
	users *memUserRepo
}

func newMemMessageRepo(users *memUserRepo) *memMessageRepo {
	return &memMessageRepo{byID: map[int64]*model.Message{}, users: users}
}

func (m *memMessageRepo) Insert(campaignID, userID int64) (*model.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.byID {
		if msg.CampaignID == campaignID && msg.UserID == userID {
			return nil, false, nil
		}
	}
	m.seq++
	msg := &model.Message{
		ID:         m.seq,
		CampaignID: campaignID,
		UserID:     userID,
		Status:     model.MessageStatusQueued,
		CreatedAt:  time.Now(),
	}
	m.byID[msg.ID] = msg
	cp := *msg
	return &cp, true, nil
}

func (m *memMessageRepo) GetByID(id int64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (m *memMessageRepo) MarkSent(id int64, providerMessageID string, sentAt time.Time, latencyMS int64, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok || msg.Status != model.MessageStatusQueued {
		return nil
	}
	msg.Status = model.MessageStatusSent
	msg.ProviderMessageID = providerMessageID
	msg.SentAt = &sentAt
	msg.LatencyMS = &latencyMS
	msg.AttemptCount = attempts
	msg.LastError = ""
	return nil
}

func (m *memMessageRepo) MarkFailed(id int64, lastError string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok || msg.Status != model.MessageStatusQueued {
		return nil
	}
	msg.Status = model.MessageStatusFailed
	msg.LastError = lastError
	msg.AttemptCount = attempts
	return nil
}

func (m *memMessageRepo) RecordAttempt(id int64, lastError string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok || msg.Status != model.MessageStatusQueued {
		return nil
	}
	msg.LastError = lastError
	msg.AttemptCount = attempts
	return nil
}

func (m *memMessageRepo) CountsByStatus(campaignID int64) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{
		model.MessageStatusQueued: 0,
		model.MessageStatusSent:   0,
		model.MessageStatusFailed: 0,
	}
	for _, msg := range m.byID {
		if msg.CampaignID == campaignID {
			counts[msg.Status]++
		}
	}
	return counts, nil
}

func (m *memMessageRepo) SentLatencies(campaignID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latencies := []int64{}
	for _, msg := range m.byID {
		if msg.CampaignID == campaignID && msg.Status == model.MessageStatusSent && msg.LatencyMS != nil {
			latencies = append(latencies, *msg.LatencyMS)
		}
	}
	for i := 1; i < len(latencies); i++ {
		for j := i; j > 0 && latencies[j-1] > latencies[j]; j-- {
			latencies[j-1], latencies[j] = latencies[j], latencies[j-1]
		}
	}
	return latencies, nil
}

func (m *memMessageRepo) CountNonTerminal(campaignID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.byID {
		if msg.CampaignID == campaignID && msg.Status == model.MessageStatusQueued {
			n++
		}
	}
	return n, nil
}

func (m *memMessageRepo) ListByCampaign(campaignID int64) ([]model.MessageWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.MessageWithUser{}
	for id := int64(1); id <= m.seq; id++ {
		msg, ok := m.byID[id]
		if !ok || msg.CampaignID != campaignID {
			continue
		}
		mw := model.MessageWithUser{Message: *msg}
		if m.users != nil {
			for i := range m.users.users {
				if m.users.users[i].ID == msg.UserID {
					mw.User = m.users.users[i]
				}
			}
		}
		out = append(out, mw)
	}
	return out, nil
}

var _ repository.MessageRepositoryInterface = (*memMessageRepo)(nil)
var _ repository.CampaignRepositoryInterface = (*memCampaignRepo)(nil)
var _ repository.UserRepositoryInterface = (*memUserRepo)(nil)

// --- fake queue ---

// fakeQueue records published ids so tests can drain the work queue
// synchronously and observe scheduled retry delays.
type fakeQueue struct {
	mu     sync.Mutex
	items  []int64
	delays []time.Duration
}

func (q *fakeQueue) Publish(topic string, messageID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, messageID)
	return nil
}

func (q *fakeQueue) PublishAfter(topic string, messageID int64, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, messageID)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *fakeQueue) Subscribe(topic string, workers int, handler func(messageID int64) error) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) pop() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

func (q *fakeQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// --- synchronous queue ---

// syncQueue hands every published item to its handler before Publish returns,
// the tightest ordering an in-process pool can produce.
type syncQueue struct {
	handler func(messageID int64) error
}

func (q *syncQueue) Publish(topic string, messageID int64) error {
	return q.handler(messageID)
}

func (q *syncQueue) PublishAfter(topic string, messageID int64, delay time.Duration) error {
	return q.handler(messageID)
}

func (q *syncQueue) Subscribe(topic string, workers int, handler func(messageID int64) error) error {
	return nil
}

func (q *syncQueue) Close() error { return nil }

// --- scripted transport ---

// scriptedTransport fails according to a per-call script; calls beyond the
// script succeed.
type scriptedTransport struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (t *scriptedTransport) Send(ctx context.Context, to, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call := t.calls
	t.calls++
	if call < len(t.script) && t.script[call] != nil {
		return "", t.script[call]
	}
	return fmt.Sprintf("pm-%d", call), nil
}

func (t *scriptedTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
