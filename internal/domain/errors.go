package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the stable, machine-readable reason attached to every refusal.
type ErrorCode string

// Error codes for the diagnostic failure taxonomy
const (
	ErrInputQuality         ErrorCode = "INPUT_QUALITY"
	ErrKnowledgeUnavailable ErrorCode = "KNOWLEDGE_UNAVAILABLE"
	ErrInsufficientEvidence ErrorCode = "INSUFFICIENT_EVIDENCE"
	ErrTimeout              ErrorCode = "TIMEOUT"
	ErrChainConstruction    ErrorCode = "CHAIN_CONSTRUCTION"
	ErrOverload             ErrorCode = "OVERLOAD"
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
)

// DiagnosticError is the structured refusal returned by the core. Explanation is written for
// clinical display; Message is for logs and developers.
type DiagnosticError struct {
	Code        ErrorCode     `json:"code"`
	Message     string        `json:"message"`
	Explanation string        `json:"explanation"`
	Retryable   bool          `json:"retryable"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Cause       error         `json:"-"`
}

// Error implements the error interface
func (e *DiagnosticError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *DiagnosticError) Unwrap() error {
	return e.Cause
}

// IsRefusal reports whether the error is an expected clinical-safety outcome rather than a
// defect or an infrastructure failure.
func (e *DiagnosticError) IsRefusal() bool {
	switch e.Code {
	case ErrInputQuality, ErrInsufficientEvidence, ErrInvalidInput:
		return true
	default:
		return false
	}
}

// NewDiagnosticError creates a new DiagnosticError with timestamp
func NewDiagnosticError(code ErrorCode, message, explanation string, cause error) *DiagnosticError {
	return &DiagnosticError{
		Code:        code,
		Message:     message,
		Explanation: explanation,
		Timestamp:   time.Now().UTC(),
		Cause:       cause,
	}
}

// NewInputQualityError reports a case that did not satisfy the upstream quality contract.
func NewInputQualityError(score, threshold float64, validated bool) *DiagnosticError {
	msg := fmt.Sprintf("case quality score %.1f below threshold %.1f", score, threshold)
	if !validated {
		msg = "case is missing the upstream quality-validation flag"
	}
	return NewDiagnosticError(ErrInputQuality, msg,
		"Data quality insufficient for automated differential diagnosis - complete the clinical record or recommend specialist consultation.",
		nil)
}

// NewKnowledgeUnavailableError reports that no knowledge snapshot could be consulted.
func NewKnowledgeUnavailableError(cause error) *DiagnosticError {
	return NewDiagnosticError(ErrKnowledgeUnavailable, "knowledge snapshot unavailable",
		"The medical knowledge base is currently unavailable; no diagnosis can be produced without it. Retry shortly.",
		cause)
}

// NewInsufficientEvidenceError reports that no candidate survived scoring.
func NewInsufficientEvidenceError(reason string) *DiagnosticError {
	return NewDiagnosticError(ErrInsufficientEvidence, reason,
		"Findings are outside the validated scope of the knowledge base - confidence too low to suggest a diagnosis. Recommend specialist consultation.",
		nil)
}

// NewTimeoutError reports a pipeline that exceeded its deadline.
func NewTimeoutError(deadline time.Duration, cause error) *DiagnosticError {
	e := NewDiagnosticError(ErrTimeout, fmt.Sprintf("diagnostic pipeline exceeded %s deadline", deadline),
		"The diagnostic analysis did not complete in time and no partial result is shown. Retry the request.",
		cause)
	e.Retryable = true
	return e
}

// NewChainConstructionError reports an internal invariant violation while explaining a
// diagnosis. It is a defect, not a clinical refusal.
func NewChainConstructionError(diseaseID string) *DiagnosticError {
	return NewDiagnosticError(ErrChainConstruction,
		fmt.Sprintf("no evidence available to explain candidate %s", diseaseID),
		"An internal consistency check failed; the result has been withheld.",
		nil)
}

// NewOverloadError reports admission-control rejection.
func NewOverloadError(retryAfter time.Duration) *DiagnosticError {
	e := NewDiagnosticError(ErrOverload, "diagnostic capacity exhausted",
		"The diagnostic service is under sustained load. Retry after the indicated delay.",
		nil)
	e.Retryable = true
	e.RetryAfter = retryAfter
	return e
}

// IsCode reports whether err carries a DiagnosticError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// AsDiagnosticError extracts a DiagnosticError from err.
func AsDiagnosticError(err error) (*DiagnosticError, bool) {
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
