package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindBySubjectID は指定subjectのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT subject_id, email, sign_in_provider, zoho_refresh_token, created_at, updated_at
		 FROM accounts WHERE subject_id = $1`,
		subjectID,
	).Scan(&account.SubjectID, &account.Email, &account.SignInProvider,
		&account.ZohoRefreshToken, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by subject ID: %w", err)
	}

	return account, nil
}

// Upsert はアカウントを冪等に作成・更新する。
// subject_idの主キー制約により、並行した初回ログインでも重複は発生しない。
// 既存行にはemail・sign_in_provider・updated_atのみ反映し、zoho_refresh_tokenは維持する。
func (r *PostgresAccountRepo) Upsert(ctx context.Context, account *model.Account) (*model.Account, error) {
	now := time.Now()
	result := &model.Account{}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (subject_id, email, sign_in_provider, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (subject_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     sign_in_provider = EXCLUDED.sign_in_provider,
		     updated_at = EXCLUDED.updated_at
		 RETURNING subject_id, email, sign_in_provider, zoho_refresh_token, created_at, updated_at`,
		account.SubjectID, account.Email, account.SignInProvider, now,
	).Scan(&result.SubjectID, &result.Email, &result.SignInProvider,
		&result.ZohoRefreshToken, &result.CreatedAt, &result.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return result, nil
}

// UpdateZohoRefreshToken はZohoリフレッシュトークンを設定またはクリアする。
func (r *PostgresAccountRepo) UpdateZohoRefreshToken(ctx context.Context, subjectID string, token *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET zoho_refresh_token = $2, updated_at = $3 WHERE subject_id = $1`,
		subjectID, token, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update zoho refresh token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", subjectID)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
