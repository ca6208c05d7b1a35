package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports job errors to Zeebe: retryable codes fail the job with
// retries, everything else throws a BPMN error.
type ErrorHandler struct {
	logger Logger
	send   SendFunc
}

// SendFunc delivers one job command to the gateway.
type SendFunc func(ctx context.Context, operation string, send func(context.Context) error) error

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger, send: sendOnce}
}

// WithSender routes fail and throw commands through send.
func (h *ErrorHandler) WithSender(send SendFunc) *ErrorHandler {
	if send != nil {
		h.send = send
	}
	return h
}

func sendOnce(ctx context.Context, _ string, send func(context.Context) error) error {
	return send(ctx)
}

// HandleJobError handles any error returned by a job handler.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	if bpmnErr.Retries > 0 && job.Retries > 1 {
		h.failJobWithRetries(ctx, client, job, bpmnErr)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// Normalize ensures err is a StandardError. Unknown errors are treated as
// non-retryable so that a payment is never silently re-run.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	retries := int32(bpmnErr.Retries)
	if job.Retries-1 < retries {
		retries = job.Retries - 1
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(bpmnErr.Message)
	vars, varsErr := json.Marshal(bpmnErr.ToErrorVariables())

	err := h.send(ctx, "fail job", func(ctx context.Context) error {
		if varsErr == nil {
			if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
				_, err = withVars.Send(ctx)
				return err
			}
		}
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to send fail job command", map[string]interface{}{"error": err, "jobKey": job.Key})
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)
	vars, varsErr := json.Marshal(bpmnErr.ToErrorVariables())

	err := h.send(ctx, "throw error", func(ctx context.Context) error {
		if varsErr == nil {
			if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
				_, err = withVars.Send(ctx)
				return err
			}
		}
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{"error": err, "jobKey": job.Key})
	}
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
