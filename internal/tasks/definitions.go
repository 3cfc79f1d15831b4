package tasks

import "time"

// Dependencies are the services task handlers need.
type Dependencies struct {
	Sweeper          Sweeper
	SweepGracePeriod time.Duration
}

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, deps Dependencies) {
	// Register general tasks
	r.Register(PurgeCallbacksTask.TaskID(), PurgeCallbacksTask.HandleExecution)

	// Register disbursement tasks
	if deps.Sweeper != nil {
		sweep := &SweepUndisbursedTaskDef{Sweeper: deps.Sweeper, GracePeriod: deps.SweepGracePeriod}
		r.Register(sweep.TaskID(), sweep.HandleExecution)
	}
}
