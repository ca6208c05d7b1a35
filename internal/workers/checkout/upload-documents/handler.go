package uploaddocuments

import (
	"context"
	"fmt"
	"time"

	"insurance-checkout/internal/common/camunda"
	"insurance-checkout/internal/common/config"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/metrics"
	"insurance-checkout/internal/common/validation"
	"insurance-checkout/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType   = "upload-documents"
	workerName = "upload-documents"
)

type Handler struct {
	config   *Config
	logger   logger.Logger
	errors   *errors.ErrorHandler
	schema   *validation.Schema
	uploader Uploader
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Activity     *registry.Activity
	Uploader     Uploader
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", workerName, err)
	}
	if opts.Uploader == nil {
		return nil, fmt.Errorf("%s requires an uploader", workerName)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	h := &Handler{
		config:   workerConfig,
		logger:   log,
		errors:   errors.NewErrorHandler(log).WithSender(camunda.SendWithRetry),
		uploader: opts.Uploader,
	}
	if opts.Activity != nil {
		schema, err := validation.Compile(opts.Activity.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("input schema for %s: %w", workerName, err)
		}
		h.schema = schema
	}
	return h, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing document upload job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	if !h.config.Enabled {
		h.logger.Info("worker disabled by configuration", nil)
		h.complete(ctx, client, job, &Output{})
		return
	}

	input := &Input{}
	if err := camunda.DecodeVariables(job, h.schema, input); err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}
	h.complete(ctx, client, job, output)
}

// Execute uploads the documents not yet stored for the application. Types
// the backend already holds are counted as skipped.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := h.uploader.UploadPendingDocuments(ctx, input.ApplicationID, input.Documents)
	if err != nil {
		return nil, err
	}
	out := &Output{}
	if result != nil {
		out.DocumentsUploaded = len(result.Uploaded)
		out.DocumentsSkipped = len(result.Skipped)
	}
	h.logger.Info("documents uploaded", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"uploaded":      out.DocumentsUploaded,
		"skipped":       out.DocumentsSkipped,
	})
	return out, nil
}

func (h *Handler) complete(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) GetTaskType() string { return TaskType }

func (h *Handler) IsEnabled() bool { return h.config.Enabled }

func (h *Handler) Timeout() time.Duration { return h.config.Timeout }

func (h *Handler) MaxJobsActive() int { return h.config.MaxJobsActive }

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}
	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}
	wc := config.GetWorkerConfig(appConfig, workerName)
	cfg.Enabled = wc.Enabled
	if wc.MaxJobsActive > 0 {
		cfg.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
