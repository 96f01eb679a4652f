package recommend

import (
	"errors"
	"fmt"
)

// Common errors returned by the recommendation service.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidProfile is returned for a usage profile that cannot be scored.
	ErrInvalidProfile = errors.New("invalid usage profile")

	// ErrNoPlans is returned by the rule generator when the catalogue is empty.
	ErrNoPlans = errors.New("no plans available")
)

// ErrorClass represents a classification of generator failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx errors and malformed model output.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests from the model provider.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// GeneratorError is a failed call to the recommendation model.
type GeneratorError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *GeneratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("generator %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *GeneratorError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status from the model provider to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classOf extracts the class of err; unclassified errors are not retried.
func classOf(err error) ErrorClass {
	var ge *GeneratorError
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors will fail the same way again
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
