package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

const (
	runStatusSuccess         = "success"
	runStatusFailure         = "failure"
	runStatusHandlerNotFound = "handler_not_found"
)

// Runner executes due scheduled tasks.
type Runner struct {
	db       *gorm.DB
	registry *Registry
	now      func() time.Time
}

func NewRunner(db *gorm.DB, registry *Registry) *Runner {
	return &Runner{db: db, registry: registry, now: time.Now}
}

// ProcessDue runs every active task whose due time has passed and returns
// how many were picked up.
func (r *Runner) ProcessDue(ctx context.Context) (int, error) {
	var pending []models.ScheduledTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, r.now()).
		Order("due").
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}

	if len(pending) == 0 {
		slog.Debug("No pending tasks found")
		return 0, nil
	}
	slog.Info("Found pending tasks", "count", len(pending))

	for _, task := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.Execute(ctx, task)
	}
	return len(pending), nil
}

// Execute runs task up to MaxAttempt times, records every attempt in the
// task history, then moves the task on. A recurring task stays active after
// a failed run so the next occurrence still happens.
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) {
	db := r.db.WithContext(ctx)
	logger := slog.With("task", task.TaskName, "task_id", task.ID)

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		logger.Error("Task handler not found; marking as failure")
		now := r.now()
		if err := db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		}).Error; err != nil {
			logger.Error("Failed to update task", "error", err)
		}
		r.recordRun(db, task, now, 0, runStatusHandlerNotFound, 1, map[string]interface{}{"error": "handler not found"})
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var (
		startTime time.Time
		runErr    error
	)
	for attempt := 1; attempt <= maxAttempt; attempt++ {
		startTime = r.now()
		began := time.Now()
		result, err := handler(ctx, r.db, task)
		runtime := time.Since(began)

		runErr = err
		status := runStatusSuccess
		resultData := result
		if err != nil {
			status = runStatusFailure
			if resultData == nil {
				resultData = map[string]interface{}{}
			}
			resultData["error"] = err.Error()
			logger.Warn("Task attempt failed", "attempt", attempt, "max_attempt", maxAttempt, "error", err)
		} else {
			logger.Info("Task completed", "attempt", attempt, "runtime", runtime)
		}
		r.recordRun(db, task, startTime, runtime, status, attempt, resultData)

		if err == nil || ctx.Err() != nil {
			break
		}
	}

	updates := map[string]interface{}{
		"last_run": &startTime,
	}
	switch {
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		next := task.NextDue(r.now())
		// a rule that has run out (or never parsed) yields Due again
		if next.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = next
		} else if runErr != nil {
			updates["status"] = models.ScheduledTaskStatusFailure
		} else {
			updates["status"] = models.ScheduledTaskStatusDone
		}
	case runErr != nil:
		updates["status"] = models.ScheduledTaskStatusFailure
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}

	if err := db.Model(&task).Updates(updates).Error; err != nil {
		logger.Error("Failed to update task", "error", err)
	}
}

func (r *Runner) recordRun(db *gorm.DB, task models.ScheduledTask, runAt time.Time, runtime time.Duration, status string, attempt int, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		RuntimeMs:       runtime.Milliseconds(),
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := db.Create(&history).Error; err != nil {
		slog.Error("Failed to record task history", "task", task.TaskName, "error", err)
	}
}

// Run processes due tasks on every tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Worker started", "interval", interval, "tasks", r.registry.Names())
	if _, err := r.ProcessDue(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Failed to process tasks", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := r.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Failed to process tasks", "error", err)
			}
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return
		}
	}
}
