package camunda

import (
	"time"

	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler completes, fails or throws for every job it receives.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions configures one job worker.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker is an open Zeebe job worker for one task type.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker whose handler is wrapped with job metrics.
func NewWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": opts.TaskType})

	builder := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(Instrument(opts.TaskType, handler).Handle).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})

	return &Worker{worker: builder.Open(), logger: log, taskType: opts.TaskType}
}

// Stop closes the worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

type instrumented struct {
	taskType string
	next     JobHandler
}

// Instrument records active gauge, duration and completion count around h.
func Instrument(taskType string, h JobHandler) JobHandler {
	return &instrumented{taskType: taskType, next: h}
}

func (i *instrumented) Handle(client worker.JobClient, job entities.Job) {
	metrics.WorkerJobsActive.WithLabelValues(i.taskType).Inc()
	start := time.Now()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(i.taskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(i.taskType).Observe(time.Since(start).Seconds())
	}()
	i.next.Handle(client, job)
}
