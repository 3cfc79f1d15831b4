package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

const defaultCallbackRetentionDays = 90

// PurgeCallbacksArgs defines the arguments for the callback retention task
type PurgeCallbacksArgs struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// PurgeCallbacksTaskDef deletes raw gateway callbacks past their retention.
type PurgeCallbacksTaskDef struct {
	now func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *PurgeCallbacksTaskDef) TaskID() string {
	return "purge_gateway_callbacks"
}

// CreateTask builds a daily purge starting at due.
func (t *PurgeCallbacksTaskDef) CreateTask(due time.Time, retentionDays int) (*models.ScheduledTask, error) {
	rule := "FREQ=DAILY;INTERVAL=1"
	return BuildScheduledTask(t.TaskID(), PurgeCallbacksArgs{RetentionDays: retentionDays}, due, &rule, models.ScheduledTaskTypeRecurring, 1)
}

// HandleExecution deletes callbacks older than the retention window.
func (t *PurgeCallbacksTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args PurgeCallbacksArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, err
	}
	if args.RetentionDays <= 0 {
		args.RetentionDays = defaultCallbackRetentionDays
	}

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	cutoff := now().AddDate(0, 0, -args.RetentionDays)

	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.GatewayCallback{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to purge gateway callbacks: %w", res.Error)
	}
	slog.Info("[Task: purge_gateway_callbacks] Purged callbacks", "deleted", res.RowsAffected, "cutoff", cutoff)

	return map[string]interface{}{
		"deleted":        res.RowsAffected,
		"retention_days": args.RetentionDays,
	}, nil
}

// PurgeCallbacksTask is the singleton instance of PurgeCallbacksTaskDef
var PurgeCallbacksTask = &PurgeCallbacksTaskDef{}
