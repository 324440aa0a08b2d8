package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-dispatch/internal/controller"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// --- mock repositories ---

type mockUserRepo struct{ users []model.User }

func (m *mockUserRepo) ListAll() ([]model.User, error) { return m.users, nil }
func (m *mockUserRepo) GetByID(id int64) (*model.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i], nil
		}
	}
	return nil, nil
}

type mockCampaignRepo struct {
	mu        sync.Mutex
	seq       int64
	campaigns map[int64]*model.Campaign
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.campaigns == nil {
		m.campaigns = map[int64]*model.Campaign{}
	}
	m.seq++
	c.ID = m.seq
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *mockCampaignRepo) GetByID(id int64) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) List(offset, limit int, status string) ([]*model.Campaign, int, error) {
	return []*model.Campaign{}, 0, nil
}

func (m *mockCampaignRepo) UpdateStatusFrom(id int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

type mockMessageRepo struct {
	mu   sync.Mutex
	seq  int64
	rows []*model.Message
}

func (m *mockMessageRepo) Insert(campaignID, userID int64) (*model.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.CampaignID == campaignID && r.UserID == userID {
			return nil, false, nil
		}
	}
	m.seq++
	row := &model.Message{
		ID:         m.seq,
		CampaignID: campaignID,
		UserID:     userID,
		Status:     model.MessageStatusQueued,
		CreatedAt:  time.Now(),
	}
	m.rows = append(m.rows, row)
	cp := *row
	return &cp, true, nil
}

func (m *mockMessageRepo) GetByID(id int64) (*model.Message, error) { return nil, nil }
func (m *mockMessageRepo) MarkSent(id int64, providerMessageID string, sentAt time.Time, latencyMS int64, attempts int) error {
	return nil
}
func (m *mockMessageRepo) MarkFailed(id int64, lastError string, attempts int) error { return nil }
func (m *mockMessageRepo) RecordAttempt(id int64, lastError string, attempts int) error {
	return nil
}

func (m *mockMessageRepo) CountsByStatus(campaignID int64) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{"queued": 0, "sent": 0, "failed": 0}
	for _, r := range m.rows {
		if r.CampaignID == campaignID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (m *mockMessageRepo) SentLatencies(campaignID int64) ([]int64, error) { return []int64{}, nil }
func (m *mockMessageRepo) CountNonTerminal(campaignID int64) (int, error) { return 0, nil }

func (m *mockMessageRepo) ListByCampaign(campaignID int64) ([]model.MessageWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.MessageWithUser{}
	for _, r := range m.rows {
		if r.CampaignID == campaignID {
			out = append(out, model.MessageWithUser{Message: *r})
		}
	}
	return out, nil
}

type mockQueue struct {
	mu    sync.Mutex
	items []int64
}

func (q *mockQueue) Publish(topic string, messageID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, messageID)
	return nil
}
func (q *mockQueue) PublishAfter(topic string, messageID int64, delay time.Duration) error {
	return q.Publish(topic, messageID)
}
func (q *mockQueue) Subscribe(topic string, workers int, handler func(messageID int64) error) error {
	return nil
}
func (q *mockQueue) Close() error { return nil }

// --- harness ---

func newRouter() (*chi.Mux, *mockCampaignRepo) {
	campaignRepo := &mockCampaignRepo{}
	messageRepo := &mockMessageRepo{}
	users := &mockUserRepo{users: []model.User{
		{ID: 1, Name: "Ray", Email: "ray@example.com", Tags: []string{"vip", "tw"}},
		{ID: 2, Name: "Alice", Email: "alice@example.com", Tags: []string{"vip"}},
	}}

	svc := &service.CampaignService{
		CampaignRepo: campaignRepo,
		UserRepo:     users,
		MessageRepo:  messageRepo,
		Queue:        &mockQueue{},
		Stats:        &service.StatsService{MessageRepo: messageRepo},
	}
	ctrl := &controller.CampaignController{CampaignService: svc}

	r := chi.NewRouter()
	r.Post("/campaigns", ctrl.CreateCampaign)
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Get("/campaigns/{id}", ctrl.GetCampaign)
	r.Get("/campaigns/{id}/preview", ctrl.Preview)
	r.Post("/campaigns/{id}/send", ctrl.SendCampaign)
	r.Get("/campaigns/{id}/stats", ctrl.Stats)
	r.Get("/campaigns/{id}/messages", ctrl.Messages)
	return r, campaignRepo
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]interface{}{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

// --- tests ---

func TestCreateCampaignEndpoint(t *testing.T) {
	r, _ := newRouter()

	w, res := doJSON(t, r, "POST", "/campaigns", map[string]string{
		"name":         "Promo",
		"template":     "Hi {{name}}",
		"segment_rule": "vip",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if res["campaign_id"] == nil || res["status"] != "draft" {
		t.Errorf("unexpected body: %v", res)
	}
}

func TestCreateCampaignValidationError(t *testing.T) {
	r, _ := newRouter()

	w, res := doJSON(t, r, "POST", "/campaigns", map[string]string{"template": "Hi"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if res["error"] == nil {
		t.Error("expected error body")
	}
}

func TestGetCampaignNotFoundEndpoint(t *testing.T) {
	r, _ := newRouter()

	w, res := doJSON(t, r, "GET", "/campaigns/99", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if res["error"] == nil {
		t.Error("expected error body")
	}
}

func TestPreviewEndpoint(t *testing.T) {
	r, _ := newRouter()

	_, created := doJSON(t, r, "POST", "/campaigns", map[string]string{
		"name": "TW VIPs", "template": "Hi {{name}}", "segment_rule": "vip,tw",
	})
	id := int64(created["campaign_id"].(float64))

	w, res := doJSON(t, r, "GET", "/campaigns/1/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (campaign %d)", w.Code, id)
	}
	if res["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", res["count"])
	}
	previews := res["previews"].([]interface{})
	if len(previews) != 1 {
		t.Fatalf("previews = %d, want 1", len(previews))
	}
	first := previews[0].(map[string]interface{})
	if first["body"] != "Hi Ray" {
		t.Errorf("body = %v, want 'Hi Ray'", first["body"])
	}
	user := first["user"].(map[string]interface{})
	if user["email"] != "ray@example.com" {
		t.Errorf("user = %v", user)
	}
}

func TestSendEndpointIdempotent(t *testing.T) {
	r, _ := newRouter()

	doJSON(t, r, "POST", "/campaigns", map[string]string{
		"name": "VIPs", "template": "Hi {{name}}", "segment_rule": "vip",
	})

	w, res := doJSON(t, r, "POST", "/campaigns/1/send", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if res["enqueued_count"].(float64) != 2 {
		t.Errorf("enqueued_count = %v, want 2", res["enqueued_count"])
	}
	if res["status"] != "sending" {
		t.Errorf("status = %v, want sending", res["status"])
	}

	_, second := doJSON(t, r, "POST", "/campaigns/1/send", nil)
	if second["enqueued_count"].(float64) != 0 {
		t.Errorf("second send enqueued_count = %v, want 0", second["enqueued_count"])
	}
}

func TestStatsEndpointNullPercentiles(t *testing.T) {
	r, _ := newRouter()

	doJSON(t, r, "POST", "/campaigns", map[string]string{
		"name": "VIPs", "template": "Hi {{name}}", "segment_rule": "vip",
	})
	doJSON(t, r, "POST", "/campaigns/1/send", nil)

	w, res := doJSON(t, r, "GET", "/campaigns/1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if res["total"].(float64) != 2 || res["queued"].(float64) != 2 {
		t.Errorf("stats = %v, want total=2 queued=2", res)
	}
	if res["p50_ms"] != nil || res["p95_ms"] != nil {
		t.Errorf("expected null percentiles before any send, got %v", res)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	r, _ := newRouter()

	doJSON(t, r, "POST", "/campaigns", map[string]string{
		"name": "VIPs", "template": "Hi {{name}}", "segment_rule": "vip",
	})
	doJSON(t, r, "POST", "/campaigns/1/send", nil)

	req := httptest.NewRequest("GET", "/campaigns/1/messages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["status"] != "queued" {
		t.Errorf("status = %v, want queued", rows[0]["status"])
	}
}
