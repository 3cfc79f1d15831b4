package tasks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// Sweeper dispatches school shares that never got a disbursement.
type Sweeper interface {
	SweepUndisbursed(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepUndisbursedArgs defines the arguments for a sweep task
type SweepUndisbursedArgs struct {
	// GracePeriod overrides the default, e.g. "15m".
	GracePeriod string `json:"grace_period,omitempty"`
}

// SweepUndisbursedTaskDef encapsulates the undisbursed-payment sweep
type SweepUndisbursedTaskDef struct {
	Sweeper     Sweeper
	GracePeriod time.Duration
}

// TaskID returns the unique identifier for this task
func (t *SweepUndisbursedTaskDef) TaskID() string {
	return "sweep_undisbursed"
}

// CreateTask builds a recurring sweep starting at due.
func (t *SweepUndisbursedTaskDef) CreateTask(due time.Time, recurrence string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), SweepUndisbursedArgs{}, due, &recurrence, models.ScheduledTaskTypeRecurring, 2)
}

// HandleExecution runs one sweep.
func (t *SweepUndisbursedTaskDef) HandleExecution(ctx context.Context, _ *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args SweepUndisbursedArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, err
	}

	grace := t.GracePeriod
	if args.GracePeriod != "" {
		d, err := time.ParseDuration(args.GracePeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid grace_period %q: %w", args.GracePeriod, err)
		}
		grace = d
	}

	dispatched, err := t.Sweeper.SweepUndisbursed(ctx, grace)
	result := map[string]interface{}{
		"dispatched":   dispatched,
		"grace_period": grace.String(),
	}
	return result, err
}
