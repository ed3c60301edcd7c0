package model

import "time"

// TaskStatus はタスクの状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未完了タスクを示す。作成直後のデフォルト状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusCompleted は完了済みタスクを示す。
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid はTaskStatusが定義済みの値かどうかを返す。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Task はユーザーが所有するタスクを表す。
// 全ての読み取り・更新はOwnerSubjectIDと呼び出し元subjectの一致でスコープされる。
type Task struct {
	ID             string
	OwnerSubjectID string
	Name           string
	Date           string // 任意の日付文字列。フォーマットは強制しない。
	ImageURL       string
	Status         TaskStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
