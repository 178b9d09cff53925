package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/scheduler"
	"github.com/makeasinger/separator/internal/service"
)

type fakeScheduler struct {
	admission *model.Admission
	snap      *model.StatusSnapshot
	err       error
}

func (f *fakeScheduler) Submit(ctx context.Context, job *model.Job) (*model.Admission, error) {
	return f.admission, f.err
}

func (f *fakeScheduler) GetStatus(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeScheduler) Cancel(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	return f.snap, f.err
}

type fakeMonitor struct {
	health *model.Health
}

func (f *fakeMonitor) HealthCheck(ctx context.Context) *model.Health {
	return f.health
}

func (f *fakeMonitor) Statistics(ctx context.Context) (*model.QueueStatistics, error) {
	return &model.QueueStatistics{QueueCapacity: 100}, nil
}

func newSeparationApp(sched *fakeScheduler) *fiber.App {
	h := NewSeparationHandler(service.NewSeparationService(sched, nil), validator.New())
	app := fiber.New()
	app.Post("/api/separate", h.Submit)
	app.Get("/api/separate/status/:jobId", h.Status)
	app.Post("/api/separate/cancel/:jobId", h.Cancel)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return resp.StatusCode, out
}

func code(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	c, _ := e["code"].(string)
	return c
}

func TestSubmitRejectionMapping(t *testing.T) {
	tests := []struct {
		reason     model.JobStatus
		wantStatus int
		wantCode   string
	}{
		{model.JobStatusInvalid, http.StatusBadRequest, "INVALID_JOB"},
		{model.JobStatusRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{model.JobStatusQueueFull, http.StatusServiceUnavailable, "QUEUE_FULL"},
		{model.JobStatusServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			app := newSeparationApp(&fakeScheduler{admission: &model.Admission{
				Rejection: &model.Rejection{Reason: tt.reason, Message: "refused"},
				Snapshot:  &model.StatusSnapshot{Status: tt.reason},
			}})

			status, body := do(t, app, http.MethodPost, "/api/separate", `{"url":"https://example.com/a.mp3"}`)
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if got := code(body); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestSubmitAccepted(t *testing.T) {
	pos, wait := 3, 120
	app := newSeparationApp(&fakeScheduler{admission: &model.Admission{
		Accepted: true,
		Snapshot: &model.StatusSnapshot{
			JobID:         "job-1",
			Status:        model.JobStatusQueued,
			Priority:      model.PriorityNormal,
			Position:      &pos,
			EstimatedWait: &wait,
			UpdatedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}})

	status, body := do(t, app, http.MethodPost, "/api/separate", `{"url":"https://example.com/a.mp3"}`)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	if body["position"] != float64(3) || body["estimatedWait"] != float64(120) {
		t.Errorf("unexpected queue fields: %v", body)
	}
}

func TestStatusAndCancelErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
	}{
		{"status not found", http.MethodGet, "/api/separate/status/x", scheduler.ErrJobNotFound, http.StatusNotFound},
		{"status store error", http.MethodGet, "/api/separate/status/x", errors.New("boom"), http.StatusInternalServerError},
		{"cancel not found", http.MethodPost, "/api/separate/cancel/x", scheduler.ErrJobNotFound, http.StatusNotFound},
		{"cancel terminal", http.MethodPost, "/api/separate/cancel/x", scheduler.ErrAlreadyTerminal, http.StatusConflict},
		{"cancel in transit", http.MethodPost, "/api/separate/cancel/x", scheduler.ErrJobInTransit, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newSeparationApp(&fakeScheduler{err: tt.err})
			status, _ := do(t, app, tt.method, tt.path, "")
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
		})
	}
}

func TestHealthStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		health     *model.Health
		wantStatus int
	}{
		{"healthy", &model.Health{Healthy: true, BreakerState: model.BreakerClosed, StoreReachable: true}, http.StatusOK},
		{"breaker open", &model.Health{BreakerState: model.BreakerOpen, StoreReachable: true}, http.StatusServiceUnavailable},
		{"store down", &model.Health{BreakerState: model.BreakerClosed}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(&fakeMonitor{health: tt.health})
			app := fiber.New()
			app.Get("/health", h.Health)

			status, body := do(t, app, http.MethodGet, "/health", "")
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if body["breakerState"] != string(tt.health.BreakerState) {
				t.Errorf("expected breakerState %s, got %v", tt.health.BreakerState, body["breakerState"])
			}
		})
	}
}
