package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Deliverer runs one delivery attempt for a job.
type Deliverer interface {
	Deliver(ctx context.Context, jobID uuid.UUID) (outbox.Job, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deliverer Deliverer, log *logger.Logger) (*Worker, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskDeliverNotification, NewDeliveryHandler(deliverer, log))

	return &Worker{server: server, mux: mux, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// DeliveryHandler is the asynq handler for TaskDeliverNotification.
type DeliveryHandler struct {
	deliverer Deliverer
	log       *logger.Logger
}

func NewDeliveryHandler(deliverer Deliverer, log *logger.Logger) *DeliveryHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &DeliveryHandler{deliverer: deliverer, log: log}
}

// ProcessTask implements asynq.Handler. A job that is no longer due, already
// leased or finished is not an error: the outbox row is the source of truth
// and duplicates of a task are expected.
func (h *DeliveryHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDeliveryPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	jobID := payload.JobID

	job, err := h.deliverer.Deliver(ctx, jobID)
	switch {
	case errors.Is(err, outbox.ErrNotLeasable):
		h.log.Debug("delivery task skipped", "jobId", jobID)
		return nil
	case errors.Is(err, outbox.ErrNotFound):
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	case err != nil:
		return err
	}
	h.log.Debug("delivery task finished", "jobId", job.ID, "status", job.Status, "attempts", job.Attempts)
	return nil
}
