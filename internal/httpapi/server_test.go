package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johnrirwin/nordicwire/internal/aggregator"
	"github.com/johnrirwin/nordicwire/internal/auth"
	"github.com/johnrirwin/nordicwire/internal/enrich"
	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

type fakePipeline struct {
	cycleErr    error
	cleanupErr  error
	report      models.CycleReport
	last        *models.CycleReport
	cleanupAt   time.Time
	cycleCalls  int
	sourceInfos []models.SourceInfo
}

func (f *fakePipeline) RunCycle(ctx context.Context) (models.CycleReport, error) {
	f.cycleCalls++
	return f.report, f.cycleErr
}

func (f *fakePipeline) Cleanup(ctx context.Context, now time.Time) (models.CleanupReport, error) {
	f.cleanupAt = now
	if f.cleanupErr != nil {
		return models.CleanupReport{}, f.cleanupErr
	}
	return models.CleanupReport{Deleted: 4, Cutoff: now}, nil
}

func (f *fakePipeline) LastReport() (models.CycleReport, bool) {
	if f.last == nil {
		return models.CycleReport{}, false
	}
	return *f.last, true
}

func (f *fakePipeline) Sources() []models.SourceInfo {
	return f.sourceInfos
}

type fixedStatus struct{ status enrich.Status }

func (f fixedStatus) Status() enrich.Status { return f.status }

func newTestServer(p Pipeline, limiter ratelimit.RateLimiter, verifier *auth.Verifier) *Server {
	return New(p, nil, limiter, auth.NewMiddleware(verifier), logging.New(logging.LevelError))
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWriteJSON(t *testing.T) {
	s := &Server{logger: logging.New(logging.LevelError)}

	w := httptest.NewRecorder()
	s.writeJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
}

func TestWriteError(t *testing.T) {
	s := &Server{logger: logging.New(logging.LevelError)}

	w := httptest.NewRecorder()
	s.writeError(w, http.StatusConflict, "in_progress", "busy")

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["code"] != "in_progress" || response["message"] != "busy" {
		t.Errorf("response = %v", response)
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := &Server{logger: logging.New(logging.LevelError)}

	handler := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("OPTIONS request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodOptions, "/api/cycles", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Error("Missing Access-Control-Allow-Origin header")
		}
	})

	t.Run("GET request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

		if w.Code != http.StatusTeapot {
			t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
		}
	})
}

func TestHandleRunCycle(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		method     string
		wantStatus int
		wantText   string
	}{
		{
			name:       "success",
			method:     http.MethodPost,
			wantStatus: http.StatusOK,
			wantText:   "fetched 3, dropped 0, unique 3, written 3, failed sources 1",
		},
		{
			name:       "in progress",
			err:        aggregator.ErrCycleInProgress,
			method:     http.MethodPost,
			wantStatus: http.StatusConflict,
			wantText:   "in_progress",
		},
		{
			name:       "persistence failure",
			err:        fmt.Errorf("%w: %w", aggregator.ErrPersistenceFailure, errors.New("db gone")),
			method:     http.MethodPost,
			wantStatus: http.StatusInternalServerError,
			wantText:   "db gone",
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{
				cycleErr: tt.err,
				report: models.CycleReport{
					Fetched: 3, Deduped: 3, Written: 3,
					Errors: []models.SourceFailure{{Source: "B", Message: "down"}},
				},
			}
			h := newTestServer(p, nil, auth.NewVerifier("", "")).Handler()

			w := doRequest(t, h, tt.method, "/api/cycles", "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantText != "" && !strings.Contains(w.Body.String(), tt.wantText) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.wantText)
			}
		})
	}
}

func TestHandleRunCycle_ManualTriggerLimited(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(p, ratelimit.New(time.Hour), auth.NewVerifier("", "")).Handler()

	if w := doRequest(t, h, http.MethodPost, "/api/cycles", ""); w.Code != http.StatusOK {
		t.Fatalf("first trigger status = %d, want 200", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/api/cycles", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("second trigger status = %d, want 429", w.Code)
	}
	if p.cycleCalls != 1 {
		t.Errorf("RunCycle calls = %d, want 1", p.cycleCalls)
	}
}

func TestTriggerRoutes_RequireToken(t *testing.T) {
	verifier := auth.NewVerifier("test-secret-key-minimum-32-chars-long", "")
	token, err := verifier.Issue("ops", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	p := &fakePipeline{}
	h := newTestServer(p, nil, verifier).Handler()

	for _, path := range []string{"/api/cycles", "/api/cleanup"} {
		if w := doRequest(t, h, http.MethodPost, path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, w.Code)
		}
		if w := doRequest(t, h, http.MethodPost, path, token); w.Code != http.StatusOK {
			t.Errorf("%s with token: status = %d, want 200", path, w.Code)
		}
	}

	if w := doRequest(t, h, http.MethodGet, "/api/sources", ""); w.Code != http.StatusOK {
		t.Errorf("read routes should stay open, got %d", w.Code)
	}
}

func TestHandleCleanup(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePipeline{}
	s := newTestServer(p, nil, auth.NewVerifier("", ""))
	s.now = func() time.Time { return now }

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/cleanup", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var report models.CleanupReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Deleted != 4 || !p.cleanupAt.Equal(now) {
		t.Errorf("report = %+v, cleanupAt = %v", report, p.cleanupAt)
	}

	p.cleanupErr = errors.New("db gone")
	if w := doRequest(t, s.Handler(), http.MethodPost, "/api/cleanup", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("failing cleanup status = %d, want 500", w.Code)
	}
}

func TestHandleLastCycle(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(p, nil, nil).Handler()

	if w := doRequest(t, h, http.MethodGet, "/api/cycles/last", ""); w.Code != http.StatusNotFound {
		t.Errorf("status before any cycle = %d, want 404", w.Code)
	}

	p.last = &models.CycleReport{Written: 7}
	w := doRequest(t, h, http.MethodGet, "/api/cycles/last", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got models.CycleReport
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Written != 7 {
		t.Errorf("Written = %d, want 7", got.Written)
	}
}

func TestHandleEnrichmentStatus(t *testing.T) {
	p := &fakePipeline{}

	t.Run("disabled", func(t *testing.T) {
		h := newTestServer(p, nil, nil).Handler()
		w := doRequest(t, h, http.MethodGet, "/api/enrichment/status", "")
		if !strings.Contains(w.Body.String(), `"enabled":false`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("enabled", func(t *testing.T) {
		s := New(p, fixedStatus{enrich.Status{Succeeded: 3}}, nil, nil, logging.New(logging.LevelError))
		w := doRequest(t, s.Handler(), http.MethodGet, "/api/enrichment/status", "")
		if !strings.Contains(w.Body.String(), `"succeeded":3`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})
}

func TestHandleGetSources(t *testing.T) {
	p := &fakePipeline{sourceInfos: []models.SourceInfo{{ID: "svt-nyheter", Name: "SVT Nyheter"}}}
	h := newTestServer(p, nil, nil).Handler()

	w := doRequest(t, h, http.MethodGet, "/api/sources", "")

	var body struct {
		Sources []models.SourceInfo `json:"sources"`
		Count   int                 `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Sources[0].Name != "SVT Nyheter" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakePipeline{}, nil, nil).Handler()

	if w := doRequest(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	w := doRequest(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("/metrics should expose the default registry")
	}
}
