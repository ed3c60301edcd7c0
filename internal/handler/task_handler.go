package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	// Create はタスクを作成する。statusは常にpendingで作成される。
	Create(ctx context.Context, subjectID string, input task.CreateInput) (*model.Task, error)
	// List は指定ステータスのタスク一覧を返す。
	List(ctx context.Context, subjectID string, status model.TaskStatus) ([]*model.Task, error)
	// UpdateStatus はタスクのステータスを更新する。
	UpdateStatus(ctx context.Context, subjectID, taskID string, status model.TaskStatus) (*model.Task, error)
}

// TaskMetrics はタスクハンドラーが記録するメトリクスのインターフェース。
type TaskMetrics interface {
	RecordTaskCreated()
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
	metrics TaskMetrics // nil可
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, metrics TaskMetrics) *TaskHandler {
	return &TaskHandler{
		service: service,
		metrics: metrics,
	}
}

// --- リクエスト・レスポンス型 ---

// addTaskRequest はタスク作成リクエストのボディ。
type addTaskRequest struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	ImageURL string `json:"imageUrl"`
}

// updateTaskStatusRequest はステータス更新リクエストのボディ。
type updateTaskStatusRequest struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// taskResponse はタスクのレスポンス。
type taskResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	ImageURL  string    `json:"imageUrl"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// taskListResponse はタスク一覧のレスポンス。
type taskListResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

// toTaskResponse はドメインのTaskをレスポンス型に変換する。
// 所有者subjectはレスポンスに含めない。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Name:      t.Name,
		Date:      t.Date,
		ImageURL:  t.ImageURL,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// AddTask はタスクを作成する。
// POST /add-task
func (h *TaskHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req addTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"リクエストボディの解析に失敗しました。",
			"正しいJSON形式でリクエストしてください。",
		))
		return
	}

	created, err := h.service.Create(r.Context(), subjectID, task.CreateInput{
		Name:     req.Name,
		Date:     req.Date,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTaskCreated()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTaskResponse(created))
}

// GetTasks は未完了タスクの一覧を取得する。
// ?status=でステータスを指定した場合はそのステータスで絞り込む。
// GET /get-tasks?status=pending|completed
func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	// デフォルトはpending
	status := model.TaskStatusPending
	if q := r.URL.Query().Get("status"); q != "" {
		status = model.TaskStatus(q)
	}

	h.listTasks(w, r, subjectID, status)
}

// GetCompletedTasks は完了済みタスクの一覧を取得する。
// GET /get-completed-tasks
func (h *TaskHandler) GetCompletedTasks(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	h.listTasks(w, r, subjectID, model.TaskStatusCompleted)
}

// listTasks は指定ステータスのタスク一覧を書き込む共通処理。
func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request, subjectID string, status model.TaskStatus) {
	tasks, err := h.service.List(r.Context(), subjectID, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := taskListResponse{Tasks: make([]taskResponse, len(tasks))}
	for i, t := range tasks {
		resp.Tasks[i] = toTaskResponse(t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateTaskStatus はタスクのステータスを更新する。
// 他人のタスクと存在しないタスクはいずれも404で区別しない。
// POST /update-task-status
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req updateTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"リクエストボディの解析に失敗しました。",
			"taskIdとstatusを指定してください。",
		))
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), subjectID, req.TaskID, model.TaskStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(updated))
}

// --- エラーレスポンス共通処理 ---

// apiErrorResponse はエラーレスポンスのJSON表現。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeTaskNameRequired, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeZohoNotLinked:
		return http.StatusBadRequest
	case model.ErrCodeZohoReconnectRequired:
		return http.StatusUnauthorized
	case model.ErrCodeTokenExchangeFailed, model.ErrCodeUploadFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
