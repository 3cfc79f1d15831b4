package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	if maxAttempt < 1 {
		maxAttempt = 1
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// decodeArgs converts a task's stored arguments into a typed struct.
func decodeArgs(task models.ScheduledTask, dest interface{}) error {
	if len(task.Arguments) == 0 {
		return nil
	}
	argsBytes, err := json.Marshal(task.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(argsBytes, dest); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", task.TaskName, err)
	}
	return nil
}

// EnsureRecurring creates task unless an active task with the same name
// already exists. It reports whether a row was created.
func EnsureRecurring(ctx context.Context, db *gorm.DB, task *models.ScheduledTask) (bool, error) {
	var existing models.ScheduledTask
	err := db.WithContext(ctx).
		Where("task_name = ? AND status = ?", task.TaskName, models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up task %s: %w", task.TaskName, err)
	}

	if err := db.WithContext(ctx).Create(task).Error; err != nil {
		return false, fmt.Errorf("failed to create task %s: %w", task.TaskName, err)
	}
	slog.Info("Scheduled recurring task", "task", task.TaskName, "id", task.ID, "due", task.Due)
	return true, nil
}
