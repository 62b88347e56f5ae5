package services

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input synchronously; nothing is persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, v ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, v...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MalformedPayloadError means a feedback record's response payload could not
// be parsed. The record stays unanalyzed for manual inspection.
type MalformedPayloadError struct {
	FeedbackID uint
	Err        error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed response payload on feedback %d: %v", e.FeedbackID, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func IsMalformedPayload(err error) bool {
	var me *MalformedPayloadError
	return errors.As(err, &me)
}

// GenerationFailedError is a transient reasoning-service failure (timeout,
// malformed output, auth failure). Distinct from a duplicate skip: failures
// are retried, skips are terminal.
type GenerationFailedError struct {
	Err error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("policy generation failed: %v", e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

func IsGenerationFailed(err error) bool {
	var ge *GenerationFailedError
	return errors.As(err, &ge)
}

// ErrVerdictConflict is returned when MarkAnalyzed is called on an already
// analyzed record with a different verdict. The caller must not do that;
// the stored verdict is left untouched.
var ErrVerdictConflict = errors.New("feedback already analyzed with a different verdict")

// ErrFeedbackNotFound is returned when a referenced feedback record does not exist.
var ErrFeedbackNotFound = errors.New("feedback record not found")
