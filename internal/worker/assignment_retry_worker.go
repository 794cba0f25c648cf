package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/repository"
	"github.com/communityfix/maintenance-service/internal/service"
)

// retryActor identifies worker-initiated assignments.
const retryActor = "assignment-retry"

// AssignmentRetryWorker periodically re-runs auto-assignment over open
// unassigned tickets. Tickets left unassigned at intake (no available
// technician, lost race, transient failure) get another chance once
// workloads drain.
type AssignmentRetryWorker struct {
	tickets     repository.TicketRepository
	assignments *service.AssignmentService
	logger      *zap.Logger
	cfg         config.AssignmentConfig
	scheduler   *cron.Cron
}

// NewAssignmentRetryWorker builds the worker.
func NewAssignmentRetryWorker(cfg config.AssignmentConfig, tickets repository.TicketRepository, assignments *service.AssignmentService, logger *zap.Logger) *AssignmentRetryWorker {
	return &AssignmentRetryWorker{
		tickets:     tickets,
		assignments: assignments,
		logger:      logger,
		cfg:         cfg,
		scheduler:   cron.New(),
	}
}

// Start schedules the retry pass. No-op when disabled.
func (w *AssignmentRetryWorker) Start() error {
	if !w.cfg.RetryEnabled {
		w.logger.Info("assignment retry worker disabled")
		return nil
	}
	if _, err := w.scheduler.AddFunc(w.cfg.RetryCronSpec, w.runPass); err != nil {
		return err
	}
	w.scheduler.Start()
	w.logger.Info("assignment retry worker started", zap.String("schedule", w.cfg.RetryCronSpec))
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (w *AssignmentRetryWorker) Stop() {
	ctx := w.scheduler.Stop()
	<-ctx.Done()
}

func (w *AssignmentRetryWorker) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	batch := w.cfg.RetryBatchSize
	if batch <= 0 {
		batch = 50
	}
	tickets, err := w.tickets.ListOpenUnassigned(ctx, batch)
	if err != nil {
		w.logger.Warn("retry pass failed to list unassigned tickets", zap.Error(err))
		return
	}

	assigned := 0
	for i := range tickets {
		result, err := w.assignments.AutoAssign(ctx, tickets[i].ID, retryActor)
		if err != nil {
			// Conflicts just mean somebody got there first; keep going.
			w.logger.Debug("retry auto-assign skipped", zap.String("ticket_id", tickets[i].ID), zap.Error(err))
			continue
		}
		if result.Assigned {
			assigned++
		}
	}
	if len(tickets) > 0 {
		w.logger.Info("assignment retry pass complete",
			zap.Int("considered", len(tickets)),
			zap.Int("assigned", assigned))
	}
}
