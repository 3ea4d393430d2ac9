package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/pouch-store-api/models"
	"gorm.io/gorm"
)

// TaskService manages admin work items
type TaskService struct {
	db *gorm.DB
}

// NewTaskService creates a new task service instance
func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db}
}

// CreateTask opens a task; pass tx to make it part of a larger transaction
func (s *TaskService) CreateTask(ctx context.Context, tx *gorm.DB, title, description string, category models.TaskCategory, related models.RelatedRef) (*models.Task, error) {
	task := models.Task{
		Title:       title,
		Description: description,
		Category:    category,
		Status:      models.TaskOpen,
		Related:     related,
	}
	if err := s.conn(ctx, tx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

// CompleteTasks closes every open task of category for the related entity and returns how many were closed
func (s *TaskService) CompleteTasks(ctx context.Context, tx *gorm.DB, category models.TaskCategory, related models.RelatedRef) (int64, error) {
	now := time.Now()
	result := s.conn(ctx, tx).Model(&models.Task{}).
		Where("category = ? AND status = ? AND related_kind = ? AND related_id = ?", category, models.TaskOpen, related.Kind, related.ID).
		Updates(map[string]interface{}{"status": models.TaskCompleted, "completed_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to complete tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CompleteTask closes one task by id
func (s *TaskService) CompleteTask(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err, "task")
	}
	if task.Status == models.TaskCompleted {
		return &task, nil
	}
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&task).Updates(map[string]interface{}{"status": models.TaskCompleted, "completed_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	task.Status = models.TaskCompleted
	task.CompletedAt = &now
	return &task, nil
}

// ListTasks returns tasks filtered by status and category, oldest first
func (s *TaskService) ListTasks(ctx context.Context, status models.TaskStatus, category models.TaskCategory) ([]models.Task, error) {
	query := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}
