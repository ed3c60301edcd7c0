// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// subjectContextKey はリクエストコンテキストにsubject IDを格納するためのキー。
var subjectContextKey = contextKey("subject_id")

// TokenVerifier はbearerトークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*auth.Claims, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを
// リクエストごとに検証するミドルウェアを返す。サーバー側に
// セッション状態は持たず、トークン自体が唯一のクレデンシャルとなる。
// 検証済みsubject IDをリクエストコンテキストに注入する。
// ヘッダーの欠落・形式不正・検証失敗はすべて401 Unauthorizedを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. AuthorizationヘッダーからBearerトークンを取り出す
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 2. トークンを検証する
			claims, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				slog.Warn("bearer token rejected",
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 3. 検証済みsubject IDをコンテキストに注入
			ctx := context.WithValue(r.Context(), subjectContextKey, claims.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// SubjectFromContext はリクエストコンテキストからsubject IDを取得する。
// bearer認証ミドルウェアを通過したリクエストでのみ有効。
func SubjectFromContext(ctx context.Context) (string, error) {
	subjectID, ok := ctx.Value(subjectContextKey).(string)
	if !ok || subjectID == "" {
		return "", fmt.Errorf("subject ID not found in context")
	}
	return subjectID, nil
}

// ContextWithSubject はコンテキストにsubject IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subjectID)
}
