package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// UploaderInterface はアップロードハンドラーが必要とする中継サービスのインターフェース。
type UploaderInterface interface {
	// Store はアップロードストリームをオブジェクトストアへ中継し、公開URLを返す。
	Store(ctx context.Context, subjectID, filename string, body io.Reader) (string, error)
}

// UploadMetrics はアップロードハンドラーが記録するメトリクスのインターフェース。
type UploadMetrics interface {
	RecordUpload(result string)
	RecordUploadLatency(duration time.Duration)
}

// UploadHandler はファイルアップロードのHTTPハンドラー。
type UploadHandler struct {
	uploader UploaderInterface
	maxSize  int64
	metrics  UploadMetrics // nil可
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(uploader UploaderInterface, maxSize int64, m UploadMetrics) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		maxSize:  maxSize,
		metrics:  m,
	}
}

// uploadResponse はアップロードレスポンス。
type uploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

// Upload はmultipartフォームの"file"フィールドを受け取り、
// オブジェクトストアへ中継して公開URLを返す。
// POST /upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"アップロードファイルが指定されていません。",
			"multipartフォームのfileフィールドにファイルを指定してください。",
		))
		return
	}
	defer file.Close()

	start := time.Now()
	url, err := h.uploader.Store(r.Context(), subjectID, header.Filename, file)
	if h.metrics != nil {
		h.metrics.RecordUploadLatency(time.Since(start))
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordUpload(metrics.ResultFailure)
		}
		slog.Error("upload failed",
			slog.String("subject_id", subjectID),
			slog.String("filename", header.Filename),
		)
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(metrics.ResultSuccess)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(uploadResponse{ImageURL: url})
}
