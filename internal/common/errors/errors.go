// Package errors provides the checkout error taxonomy and its mapping onto
// Zeebe job failure semantics.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode identifies a taxonomy entry.
type ErrorCode string

const (
	// ErrCodeValidationFailed is a field-level rejection by the backend.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeTransportFailed covers network errors, timeouts and 5xx.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	// ErrCodePaymentRejected is a business rejection at payment initiation.
	ErrCodePaymentRejected ErrorCode = "PAYMENT_REJECTED"
	// ErrCodePaymentTerminalFailure is a failed, cancelled or expired payment.
	ErrCodePaymentTerminalFailure ErrorCode = "PAYMENT_TERMINAL_FAILURE"
	// ErrCodePartialFailure means the payment settled but the record update did not.
	ErrCodePartialFailure ErrorCode = "PARTIAL_FAILURE"
	// ErrCodeDocumentUploadFailed is non-fatal; the application stays submitted.
	ErrCodeDocumentUploadFailed ErrorCode = "DOCUMENT_UPLOAD_FAILED"
	// ErrCodeInvalidState is an operation invoked from the wrong state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeSessionAbandoned is returned when a session was cancelled or torn
	// down while a request was in flight.
	ErrCodeSessionAbandoned ErrorCode = "SESSION_ABANDONED"
	// ErrCodeInvalidInput is malformed job input.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrValidationFailed       = &StandardError{Code: ErrCodeValidationFailed}
	ErrTransportFailed        = &StandardError{Code: ErrCodeTransportFailed}
	ErrPaymentRejected        = &StandardError{Code: ErrCodePaymentRejected}
	ErrPaymentTerminalFailure = &StandardError{Code: ErrCodePaymentTerminalFailure}
	ErrPartialFailure         = &StandardError{Code: ErrCodePartialFailure}
	ErrDocumentUploadFailed   = &StandardError{Code: ErrCodeDocumentUploadFailed}
	ErrInvalidState           = &StandardError{Code: ErrCodeInvalidState}
	ErrSessionAbandoned       = &StandardError{Code: ErrCodeSessionAbandoned}
	ErrInvalidInput           = &StandardError{Code: ErrCodeInvalidInput}
)

// StandardError is a structured checkout error.
type StandardError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Details     string                 `json:"details,omitempty"`
	Retryable   bool                   `json:"retryable"`
	FieldErrors map[string]string      `json:"fieldErrors,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Is reports whether target is a StandardError with the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// UserMessage is the text shown to the customer. Field errors are appended in
// key order so the output is stable.
func (e *StandardError) UserMessage() string {
	if len(e.FieldErrors) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.FieldErrors))
	for k := range e.FieldErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.FieldErrors[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// As returns the StandardError in err's chain, if any.
func As(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the code of the StandardError in err's chain or "".
func CodeOf(err error) ErrorCode {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// ==========================
// 2. Constructors
// ==========================

// NewValidationFailedError carries backend field errors verbatim.
func NewValidationFailedError(message string, fields map[string]string) *StandardError {
	if message == "" {
		message = "Some details need correcting"
	}
	return &StandardError{
		Code:        ErrCodeValidationFailed,
		Message:     message,
		Retryable:   false,
		FieldErrors: fields,
		Timestamp:   time.Now().UTC(),
	}
}

// NewTransportFailedError wraps a network, timeout or server error.
func NewTransportFailedError(operation string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   fmt.Sprintf("Could not reach the server while trying to %s. Please try again.", operation),
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewPaymentRejectedError is an initiation-time rejection. No timers are started.
func NewPaymentRejectedError(message, details string) *StandardError {
	if message == "" {
		message = "The payment request was rejected"
	}
	return &StandardError{
		Code:      ErrCodePaymentRejected,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPaymentTerminalFailureError describes a failed, cancelled or expired payment.
func NewPaymentTerminalFailureError(status, reason, paymentReference string) *StandardError {
	return &StandardError{
		Code:      ErrCodePaymentTerminalFailure,
		Message:   fmt.Sprintf("Payment %s: %s", status, reason),
		Retryable: false,
		Metadata: map[string]interface{}{
			"status":           status,
			"paymentReference": paymentReference,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewPartialFailureError is raised when the payment succeeded but the
// application update did not. The reference is always part of the message.
func NewPartialFailureError(paymentReference string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code: ErrCodePartialFailure,
		Message: fmt.Sprintf(
			"Your payment was received (reference %s) but we could not finalize your application. "+
				"Please keep this reference; our team will reconcile it.", paymentReference),
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"paymentReference": paymentReference},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewDocumentUploadFailedError is surfaced alongside a successful finalization.
func NewDocumentUploadFailedError(applicationID string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      ErrCodeDocumentUploadFailed,
		Message:   "Your application was submitted but some documents failed to upload. You can retry the upload later.",
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"applicationId": applicationID},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewInvalidStateError(operation, state string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidState,
		Message:   fmt.Sprintf("cannot %s while %s", operation, state),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSessionAbandonedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionAbandoned,
		Message:   "The payment session was abandoned",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid job input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Error Conversion to BPMN
// ==========================

// BPMNError is thrown to the Zeebe workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// GetRetryCount returns how many job retries a code warrants.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTransportFailed:
		return 3
	case ErrCodeDocumentUploadFailed:
		return 2
	default:
		// PartialFailure is retryable by a human-driven finalize task, not by
		// blind job retries that would re-run payment.
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for Zeebe.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"timestamp": stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}
	if len(stdErr.FieldErrors) > 0 {
		vars["fieldErrors"] = stdErr.FieldErrors
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.UserMessage(),
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// IsRetryableErrorCode reports whether a code is retried by the job worker.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return "VALIDATION"
	case ErrCodeTransportFailed:
		return "TRANSPORT"
	case ErrCodePaymentRejected, ErrCodePaymentTerminalFailure, ErrCodeSessionAbandoned:
		return "PAYMENT"
	case ErrCodePartialFailure:
		return "RECONCILIATION"
	case ErrCodeDocumentUploadFailed:
		return "DOCUMENTS"
	default:
		return "OTHER"
	}
}
