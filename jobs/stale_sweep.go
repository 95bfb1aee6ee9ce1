package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/quarry-hq/quarry/internal/tickets"
)

// StaleTicketSweepJob logs a report of open tickets that have not been
// updated within the horizon, so they surface in operational dashboards.
type StaleTicketSweepJob struct {
	Repo   tickets.Repository
	Logger *slog.Logger
	clock  func() time.Time
}

// NewStaleTicketSweepJob initialises the sweep handler.
func NewStaleTicketSweepJob(repo tickets.Repository, logger *slog.Logger) *StaleTicketSweepJob {
	return &StaleTicketSweepJob{
		Repo:   repo,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *StaleTicketSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("stale sweep: handler not configured")
	}
	var payload StaleTicketSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.HorizonDays <= 0 {
		payload.HorizonDays = 14
	}

	start := j.now()
	cutoff := start.AddDate(0, 0, -payload.HorizonDays)
	logger := j.logger().With(slog.Int("horizon_days", payload.HorizonDays))
	logger.Info("starting stale ticket sweep")

	stale, err := j.Repo.ListStaleOpen(ctx, cutoff)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}

	for _, ticket := range stale {
		logger.Warn("stale open ticket",
			slog.Int64("ticket_id", ticket.ID),
			slog.Int64("project_id", ticket.ProjectID),
			slog.String("status", ticket.Status),
			slog.String("assignee", ticket.AssigneeUsername),
			slog.Time("last_update", ticket.UpdatedAt),
		)
	}

	logger.Info("completed stale ticket sweep",
		slog.Int("stale", len(stale)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *StaleTicketSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStaleTicketSweep))
	}
	return slog.Default().With(slog.String("job", TaskStaleTicketSweep))
}

func (j *StaleTicketSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
