package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_subject_id, name, date, image_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.OwnerSubjectID, task.Name, task.Date, task.ImageURL,
		task.Status, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByOwnerAndID は所有者とIDでタスクを取得する。
// 所有者が一致しない場合は存在しないものとしてnilを返す。
func (r *PostgresTaskRepo) FindByOwnerAndID(ctx context.Context, ownerSubjectID, taskID string) (*model.Task, error) {
	task := &model.Task{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_subject_id, name, date, image_url, status, created_at, updated_at
		 FROM tasks WHERE id = $1 AND owner_subject_id = $2`,
		taskID, ownerSubjectID,
	).Scan(&task.ID, &task.OwnerSubjectID, &task.Name, &task.Date,
		&task.ImageURL, &task.Status, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	return task, nil
}

// ListByOwnerAndStatus は指定所有者の指定ステータスのタスク一覧を返す。
func (r *PostgresTaskRepo) ListByOwnerAndStatus(ctx context.Context, ownerSubjectID string, status model.TaskStatus) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_subject_id, name, date, image_url, status, created_at, updated_at
		 FROM tasks
		 WHERE owner_subject_id = $1 AND status = $2
		 ORDER BY created_at DESC, id DESC`,
		ownerSubjectID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.OwnerSubjectID, &task.Name, &task.Date,
			&task.ImageURL, &task.Status, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return tasks, nil
}

// UpdateStatus は所有者とIDが一致するタスクのステータスを更新する。
// WHERE句で所有者を突き合わせるため、他人のタスクは行数0となり更新されない。
func (r *PostgresTaskRepo) UpdateStatus(ctx context.Context, ownerSubjectID, taskID string, status model.TaskStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = $3, updated_at = $4
		 WHERE id = $1 AND owner_subject_id = $2`,
		taskID, ownerSubjectID, status, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
