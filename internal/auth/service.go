// Package auth はIDトークン検証とアカウントの遅延作成を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    TokenVerifier
	accountRepo repository.AccountRepository
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, accountRepo repository.AccountRepository) *Service {
	return &Service{
		verifier:    verifier,
		accountRepo: accountRepo,
	}
}

// VerifyToken はIDトークンを検証しクレームを返す。
// 検証失敗はすべてUnauthenticatedとして扱う。
func (s *Service) VerifyToken(ctx context.Context, idToken string) (*Claims, error) {
	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		slog.Warn("ID token verification failed",
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnauthenticatedError()
	}
	return claims, nil
}

// EnsureAccount は検証済みクレームからアカウントを冪等に確保する。
// 初回ログイン時は遅延作成し、以降のログインではemailのみ更新する。
// subject_idの一意制約により並行呼び出しでも重複は発生しない。
func (s *Service) EnsureAccount(ctx context.Context, claims *Claims) (*model.Account, error) {
	account, err := s.accountRepo.Upsert(ctx, &model.Account{
		SubjectID:      claims.SubjectID,
		Email:          claims.Email,
		SignInProvider: claims.SignInProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}

	slog.Info("account ensured",
		slog.String("subject_id", account.SubjectID),
		slog.String("provider", account.SignInProvider),
	)

	return account, nil
}
