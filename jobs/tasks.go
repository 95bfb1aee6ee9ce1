package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStaleTicketSweep reports open tickets nobody has touched for a
	// configured horizon.
	TaskStaleTicketSweep = "tickets:stale_sweep"
)

// StaleTicketSweepPayload configures a sweep run.
type StaleTicketSweepPayload struct {
	HorizonDays int `json:"horizonDays"`
}

// NewStaleTicketSweepTask constructs the sweep task.
func NewStaleTicketSweepTask(horizonDays int) (*asynq.Task, error) {
	data, err := json.Marshal(StaleTicketSweepPayload{HorizonDays: horizonDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleTicketSweep, data), nil
}
