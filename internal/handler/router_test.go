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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
	"github.com/hitoshi/taskman/internal/zoho"
)

// mockHealthChecker はHealthCheckerのモック。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, healthErr error) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()

	taskSvc := &mockTaskService{
		createFn: func(ctx context.Context, subjectID string, input task.CreateInput) (*model.Task, error) {
			return sampleTask("task-1", model.TaskStatusPending), nil
		},
		listFn: func(ctx context.Context, subjectID string, status model.TaskStatus) ([]*model.Task, error) {
			return []*model.Task{sampleTask("task-1", status)}, nil
		},
		updateStatusFn: func(ctx context.Context, subjectID, taskID string, status model.TaskStatus) (*model.Task, error) {
			return sampleTask(taskID, status), nil
		},
	}

	zohoSvc := &mockZohoService{
		authCodeURLFn: func(state string) string {
			return "https://accounts.zoho.com/oauth/v2/auth?state=" + state
		},
		linkFn: func(ctx context.Context, subjectID, code string) error { return nil },
		linkedFn: func(ctx context.Context, subjectID string) (bool, error) {
			return true, nil
		},
		syncTasksFn: func(ctx context.Context, subjectID string) ([]zoho.CRMTask, error) {
			return []zoho.CRMTask{}, nil
		},
	}

	uploader := &mockUploader{
		storeFn: func(ctx context.Context, subjectID, filename string, body io.Reader) (string, error) {
			return "https://cdn.example.com/uploads/" + subjectID + "/x.png", nil
		},
	}

	return NewRouter(&RouterDeps{
		HealthChecker:     &mockHealthChecker{err: healthErr},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		AuthService:       validAuthService(),
		TaskService:       taskSvc,
		Uploader:          uploader,
		UploadMaxSize:     1 << 20,
		ZohoService:       zohoSvc,
		ZohoConfig:        ZohoHandlerConfig{BaseURL: "https://app.example.com"},
	})
}

func TestRouter_Health_OK(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_Health_DBDown_Returns503(t *testing.T) {
	router := newTestRouter(t, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouter_ProtectedRoutes_RequireBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/add-task"},
		{http.MethodGet, "/get-tasks"},
		{http.MethodGet, "/get-completed-tasks"},
		{http.MethodPost, "/update-task-status"},
		{http.MethodPost, "/upload"},
		{http.MethodGet, "/zoho-status"},
		{http.MethodGet, "/zoho-tasks"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_SessionLogin_NoBearerRequired(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/session-login",
		strings.NewReader(`{"idToken": "valid-token"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_TaskFlow_WithBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	// タスク作成
	req := httptest.NewRequest(http.MethodPost, "/add-task",
		strings.NewReader(`{"name": "買い物"}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("add-task status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	// タスク一覧
	req = httptest.NewRequest(http.MethodGet, "/get-tasks", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("get-tasks status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body taskListResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Tasks) != 1 {
		t.Errorf("tasks = %d items, want 1", len(body.Tasks))
	}
}

func TestRouter_ZohoAuthStart_NoBearerRequired(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/zoho-auth-start?idToken=valid-token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusFound)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	// 1リクエスト流してからメトリクスを確認する
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "taskman_http_status_total") {
		t.Error("metrics output should contain taskman_http_status_total")
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the configured origin", got)
	}
}
