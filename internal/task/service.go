// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Service はタスク管理のサービス層。
// 全操作は検証済みsubjectでスコープされ、他人のタスクは見えない・触れない。
type Service struct {
	taskRepo repository.TaskRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(taskRepo repository.TaskRepository) *Service {
	return &Service{taskRepo: taskRepo}
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Name     string
	Date     string
	ImageURL string
}

// Create はタスクを作成する。
// nameが空の場合はTASK_NAME_REQUIREDで失敗し、何も書き込まない。
// statusは常にpendingで作成される。
func (s *Service) Create(ctx context.Context, subjectID string, input CreateInput) (*model.Task, error) {
	if input.Name == "" {
		return nil, model.NewTaskNameRequiredError()
	}

	now := time.Now()
	task := &model.Task{
		ID:             uuid.New().String(),
		OwnerSubjectID: subjectID,
		Name:           input.Name,
		Date:           input.Date,
		ImageURL:       input.ImageURL,
		Status:         model.TaskStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	slog.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("subject_id", subjectID),
	)

	return task, nil
}

// List は指定ステータスのタスク一覧を返す。
// 返されるタスクはすべて呼び出し元subjectが所有するものに限られる。
func (s *Service) List(ctx context.Context, subjectID string, status model.TaskStatus) ([]*model.Task, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}

	tasks, err := s.taskRepo.ListByOwnerAndStatus(ctx, subjectID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// UpdateStatus はタスクのステータスを更新する。
// タスクが存在しない場合と他人の所有である場合は、存在秘匿のため
// 同一のTASK_NOT_FOUNDで失敗する。
func (s *Service) UpdateStatus(ctx context.Context, subjectID, taskID string, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}

	updated, err := s.taskRepo.UpdateStatus(ctx, subjectID, taskID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if !updated {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	task, err := s.taskRepo.FindByOwnerAndID(ctx, subjectID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load updated task: %w", err)
	}
	if task == nil {
		// 更新直後の消失は通常起きないが、存在秘匿の方針に合わせる
		return nil, model.NewTaskNotFoundError(taskID)
	}

	slog.Info("task status updated",
		slog.String("task_id", taskID),
		slog.String("subject_id", subjectID),
		slog.String("status", string(status)),
	)

	return task, nil
}
