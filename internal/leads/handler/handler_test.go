package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/intake"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/leads/service"
	"github.com/syed-c/standzon-sub008/internal/leads/transport"
	"github.com/syed-c/standzon-sub008/internal/matching"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// stubDispatcher records dispatches without creating jobs.
type stubDispatcher struct{ dispatched int }

func (s *stubDispatcher) Dispatch(_ context.Context, _ domain.Lead, matches []domain.MatchResult) ([]outbox.Job, error) {
	s.dispatched++
	jobs := make([]outbox.Job, 0, len(matches))
	for _, m := range matches {
		jobs = append(jobs, outbox.Job{ID: uuid.New(), BuilderID: m.BuilderID})
	}
	return jobs, nil
}

func (s *stubDispatcher) CancelForLead(context.Context, uuid.UUID, string) ([]outbox.Job, error) {
	return nil, nil
}

func (s *stubDispatcher) Confirm(context.Context, uuid.UUID, string) (outbox.Job, error) {
	return outbox.Job{}, outbox.ErrNotFound
}

func (s *stubDispatcher) ListJobs(context.Context, uuid.UUID) ([]outbox.Job, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tax := geo.Default()
	store := repository.NewMemory()
	val := validator.New()
	engine, err := matching.New(matching.DefaultWeights(), 40, 20)
	if err != nil {
		t.Fatalf("matching engine: %v", err)
	}
	directory := builders.NewMemoryDirectory(builders.Builder{
		ID:           "berlin-stands",
		Email:        "team@berlin-stands.test",
		Channels:     []builders.Channel{builders.ChannelEmail},
		Locations:    []geo.Location{tax.Resolve("Berlin", "Germany")},
		Services:     []string{"Technology"},
		Verified:     true,
		Rating:       4.8,
		LastActiveAt: time.Now(),
	})
	svc := service.New(service.Deps{
		Store:      store,
		Intake:     intake.New(store, val, tax),
		Directory:  directory,
		Ranker:     engine,
		Tracker:    lifecycle.New(store, nil),
		Dispatcher: &stubDispatcher{},
	})

	r := gin.New()
	v1 := r.Group("/api/v1")
	NewPublicHandler(svc).RegisterRoutes(v1.Group("/leads"), nil)
	admin := New(svc, val)
	admin.RegisterRoutes(v1.Group("/admin/leads"))
	admin.RegisterNotificationRoutes(v1.Group("/admin/notifications"))
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func validSubmission() map[string]any {
	return map[string]any{
		"companyName":  "Acme Robotics",
		"contactEmail": "jana@acme.test",
		"exhibition":   "IFA Berlin",
		"industry":     "Technology",
		"location":     map[string]string{"city": "Berlin", "country": "Germany"},
		"budget":       "€25k",
	}
}

func TestSubmitCreatesThenDeduplicates(t *testing.T) {
	r := newTestEngine(t)

	first := doJSON(r, http.MethodPost, "/api/v1/leads", validSubmission())
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	var created transport.SubmitLeadResponse
	if err := json.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != domain.StatusMatched || created.BuildersNotified != 1 {
		t.Fatalf("unexpected response %+v", created)
	}

	second := doJSON(r, http.MethodPost, "/api/v1/leads", validSubmission())
	var dup transport.SubmitLeadResponse
	_ = json.Unmarshal(second.Body.Bytes(), &dup)
	if second.Code != http.StatusOK || !dup.Duplicate || dup.LeadID != created.LeadID {
		t.Fatalf("expected 200 duplicate of %s, got %d %+v", created.LeadID, second.Code, dup)
	}

	detail := doJSON(r, http.MethodGet, "/api/v1/admin/leads/"+created.LeadID.String(), nil)
	if detail.Code != http.StatusOK {
		t.Fatalf("expected lead detail 200, got %d", detail.Code)
	}
	var lead transport.LeadResponse
	_ = json.Unmarshal(detail.Body.Bytes(), &lead)
	if lead.Location.Country != "Germany" || len(lead.NextStatuses) != 2 {
		t.Fatalf("unexpected lead detail %+v", lead)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	r := newTestEngine(t)

	body := validSubmission()
	delete(body, "contactEmail")
	rec := doJSON(r, http.MethodPost, "/api/v1/leads", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Kind    string            `json:"kind"`
		Details map[string]string `json:"details"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Kind != "validation" || resp.Details["contactEmail"] != "required" {
		t.Fatalf("expected field details for contactEmail, got %s", rec.Body.String())
	}
}

func TestAdminRouteErrors(t *testing.T) {
	r := newTestEngine(t)
	unknown := uuid.NewString()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/api/v1/admin/leads/nope", nil, http.StatusBadRequest},
		{"unknown lead", http.MethodGet, "/api/v1/admin/leads/" + unknown, nil, http.StatusNotFound},
		{"unknown action", http.MethodPost, "/api/v1/admin/leads/" + unknown + "/manage", map[string]string{"action": "explode"}, http.StatusBadRequest},
		{"manage unknown lead", http.MethodPost, "/api/v1/admin/leads/" + unknown + "/manage", map[string]string{"action": "close"}, http.StatusNotFound},
		{"bad outcome", http.MethodPost, "/api/v1/admin/leads/" + unknown + "/outcome", map[string]any{"outcome": "maybe"}, http.StatusBadRequest},
		{"unknown job", http.MethodPost, "/api/v1/admin/notifications/" + unknown + "/delivered", map[string]string{"deliveryId": "r-1"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := doJSON(r, tc.method, tc.path, tc.body); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
