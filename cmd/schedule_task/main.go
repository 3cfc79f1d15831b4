package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/config"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/services"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/tasks"
	"github.com/zidallie-kenya/zidallie-backend-sub000/pkg/logging"
)

func main() {
	// defined flags
	taskName := flag.String("task_name", "", "Name of the task (mandatory), e.g. sweep_undisbursed")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04 or RFC3339)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	recurring := flag.String("recurring", "", "Recurrence rule, e.g. FREQ=MINUTELY;INTERVAL=30")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts per run")

	flag.Parse()

	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("Invalid configuration", err)
	}
	logging.Setup(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		fail("DATABASE_URL is not set", nil)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		fail("Invalid JSON arguments", err)
	}

	// A bare date-time is read in the server's local zone.
	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
		if err != nil {
			fail("Invalid due date format", err)
		}
	}

	kind := models.ScheduledTaskType(*taskType)
	var rule *string
	switch kind {
	case models.ScheduledTaskTypeOneTime:
	case models.ScheduledTaskTypeRecurring:
		if *recurring == "" {
			fail("A recurring task needs -recurring", nil)
		}
		rule = recurring
	default:
		fail("Unknown task type "+*taskType, nil)
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, rule, kind, *maxAttempt)
	if err != nil {
		fail("Failed to build task", err)
	}

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		fail("Failed to connect DB", err)
	}
	if err := db.Create(task).Error; err != nil {
		fail("Failed to create task", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}

func fail(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
