// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// VerifyToken はIDトークンを検証し、呼び出し元のクレームを返す。
	VerifyToken(ctx context.Context, idToken string) (*auth.Claims, error)
	// EnsureAccount はクレームに対応するアカウントを冪等に確保する。
	EnsureAccount(ctx context.Context, claims *auth.Claims) (*model.Account, error)
}

// AuthHandler はログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// sessionLoginRequest はログインリクエストのボディ。
type sessionLoginRequest struct {
	IDToken string `json:"idToken"`
}

// sessionLoginResponse はログインレスポンス。
type sessionLoginResponse struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
}

// SessionLogin はIDトークンを検証し、アカウントを冪等に確保する。
// 同一subjectの再ログインでは新しいアカウントを作らず、既存の
// アカウントのプロフィールだけを更新する。
// POST /session-login
func (h *AuthHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	claims, err := h.service.VerifyToken(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	account, err := h.service.EnsureAccount(r.Context(), claims)
	if err != nil {
		slog.Error("failed to ensure account",
			slog.String("subject_id", claims.SubjectID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionLoginResponse{
		SubjectID: account.SubjectID,
		Email:     account.Email,
	})
}
