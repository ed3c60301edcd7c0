// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/taskman/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindBySubjectID は指定subjectのアカウントを取得する。見つからない場合はnilを返す。
	FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error)

	// Upsert はアカウントを冪等に作成・更新する。
	// 既存アカウントがある場合はemailとsign_in_providerのみ更新し、
	// zoho_refresh_tokenには触れない。同一subjectの重複作成は起きない。
	Upsert(ctx context.Context, account *model.Account) (*model.Account, error)

	// UpdateZohoRefreshToken はZohoリフレッシュトークンを設定またはクリアする。
	// tokenがnilの場合はクリア（連携解除）を意味する。
	UpdateZohoRefreshToken(ctx context.Context, subjectID string, token *string) error
}

// TaskRepository はタスクデータの永続化インターフェース。
// 全ての読み取り・更新はowner_subject_idでスコープされる。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByOwnerAndID は所有者とIDでタスクを取得する。
	// 他人のタスクは存在しないものとして扱い、nilを返す。
	FindByOwnerAndID(ctx context.Context, ownerSubjectID, taskID string) (*model.Task, error)

	// ListByOwnerAndStatus は指定所有者の指定ステータスのタスク一覧を返す。
	// created_at降順、id降順で安定した順序を保証する。
	ListByOwnerAndStatus(ctx context.Context, ownerSubjectID string, status model.TaskStatus) ([]*model.Task, error)

	// UpdateStatus は所有者とIDが一致するタスクのステータスを更新する。
	// 一致する行がない場合（存在しない、または他人の所有）はfalseを返す。
	UpdateStatus(ctx context.Context, ownerSubjectID, taskID string, status model.TaskStatus) (bool, error)
}
