package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/zoho"
)

// ZohoServiceInterface はZohoハンドラーが必要とするブローカーのインターフェース。
type ZohoServiceInterface interface {
	// AuthCodeURL はZohoの認可URLを生成する。
	AuthCodeURL(state string) string
	// Link は認可コードを交換し、subjectにリフレッシュトークンを保存する。
	Link(ctx context.Context, subjectID, code string) error
	// Linked は連携状態を返す。
	Linked(ctx context.Context, subjectID string) (bool, error)
	// SyncTasks はZoho CRMからタスク一覧を取得する。
	SyncTasks(ctx context.Context, subjectID string) ([]zoho.CRMTask, error)
}

// IDTokenVerifier はOAuthフローのstate検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type IDTokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*auth.Claims, error)
}

// ZohoMetrics はZohoハンドラーが記録するメトリクスのインターフェース。
type ZohoMetrics interface {
	RecordZohoSync(result string)
}

// ZohoHandlerConfig はZohoハンドラーの設定。
type ZohoHandlerConfig struct {
	// BaseURL は連携完了後のリダイレクト先（フロントエンド）。
	BaseURL string
}

// ZohoHandler はZoho CRM連携のHTTPハンドラー。
//
// OAuthフローのリダイレクトはAuthorizationヘッダーを運べないため、
// 開始時にIDトークンをstateパラメータとして往復させ、コールバックで
// 再検証してsubjectを復元する。サーバー側にフロー状態は持たない。
type ZohoHandler struct {
	service  ZohoServiceInterface
	verifier IDTokenVerifier
	config   ZohoHandlerConfig
	metrics  ZohoMetrics // nil可
}

// NewZohoHandler はZohoHandlerを生成する。
func NewZohoHandler(service ZohoServiceInterface, verifier IDTokenVerifier, config ZohoHandlerConfig, m ZohoMetrics) *ZohoHandler {
	return &ZohoHandler{
		service:  service,
		verifier: verifier,
		config:   config,
		metrics:  m,
	}
}

// --- レスポンス型 ---

// zohoStatusResponse は連携状態のレスポンス。
type zohoStatusResponse struct {
	Connected bool `json:"connected"`
}

// zohoTaskResponse はCRMタスクのレスポンス。
type zohoTaskResponse struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate"`
	Description string `json:"description"`
}

// zohoTaskListResponse はCRMタスク一覧のレスポンス。
type zohoTaskListResponse struct {
	Tasks []zohoTaskResponse `json:"tasks"`
}

// AuthStart はZoho OAuthフローを開始する。
// リダイレクトで失われるbearerクレデンシャルをstateに載せて往復させる。
// GET /zoho-auth-start?idToken=xxx
func (h *ZohoHandler) AuthStart(w http.ResponseWriter, r *http.Request) {
	idToken := r.URL.Query().Get("idToken")
	if idToken == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"idTokenが指定されていません。",
			"idTokenクエリパラメータを指定してください。",
		))
		return
	}

	// 無効なトークンでZohoへ送り出さない
	claims, err := h.verifier.VerifyToken(r.Context(), idToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("starting Zoho OAuth flow", slog.String("subject_id", claims.SubjectID))
	http.Redirect(w, r, h.service.AuthCodeURL(idToken), http.StatusFound)
}

// OAuthCallback はZohoからのコールバックを処理する。
// stateをIDトークンとして再検証してsubjectを復元し、認可コードを
// リフレッシュトークンに交換して保存する。
// GET /zoho-oauth-callback?code=xxx&state=yyy
func (h *ZohoHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"stateが指定されていません。",
			"連携フローを最初からやり直してください。",
		))
		return
	}

	// stateの正当性はIDトークンの署名検証そのもの
	claims, err := h.verifier.VerifyToken(r.Context(), state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(
			"認可コードが指定されていません。",
			"連携フローを最初からやり直してください。",
		))
		return
	}

	if err := h.service.Link(r.Context(), claims.SubjectID, code); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, h.config.BaseURL+"/?zoho=connected", http.StatusFound)
}

// Status は呼び出し元subjectのZoho連携状態を返す。
// GET /zoho-status
func (h *ZohoHandler) Status(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	linked, err := h.service.Linked(r.Context(), subjectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zohoStatusResponse{Connected: linked})
}

// Tasks はZoho CRMのタスク一覧を取得する。
// 認証情報が失効していた場合は401と再連携指示を返す。
// GET /zoho-tasks
func (h *ZohoHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	tasks, err := h.service.SyncTasks(r.Context(), subjectID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordZohoSync(metrics.ResultFailure)
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordZohoSync(metrics.ResultSuccess)
	}

	resp := zohoTaskListResponse{Tasks: make([]zohoTaskResponse, len(tasks))}
	for i, t := range tasks {
		resp.Tasks[i] = zohoTaskResponse{
			ID:          t.ID,
			Subject:     t.Subject,
			Status:      t.Status,
			DueDate:     t.DueDate,
			Description: t.Description,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
