package recommend

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "rate limit should retry", errorClass: ErrorClassRateLimit, expected: true},
		{name: "network error should retry", errorClass: ErrorClassNetwork, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestGeneratorError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GeneratorError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &GeneratorError{
				Class:   ErrorClassNetwork,
				Message: "request failed",
				Err:     errors.New("connection refused"),
			},
			expected: "generator network error (status 0): request failed: connection refused",
		},
		{
			name: "error without wrapped error",
			err: &GeneratorError{
				StatusCode: 400,
				Class:      ErrorClassClient,
				Message:    "prompt too long",
			},
			expected: "generator client error (status 400): prompt too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGeneratorError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := fmt.Errorf("generate: %w", &GeneratorError{Class: ErrorClassNetwork, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var ge *GeneratorError
	if !errors.As(err, &ge) {
		t.Fatal("errors.As should find the GeneratorError")
	}
	if classOf(err) != ErrorClassNetwork {
		t.Errorf("classOf() = %q, want network", classOf(err))
	}
	if classOf(errors.New("plain")) != "" {
		t.Error("plain errors are unclassified")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("%w: %w", ErrRetryExhausted, &GeneratorError{Class: ErrorClassServer})) {
		t.Error("exhausted server errors are retryable later")
	}
	if IsRetryable(&GeneratorError{Class: ErrorClassClient}) {
		t.Error("client errors are not retryable")
	}
	if IsRetryable(ErrNoPlans) {
		t.Error("unclassified errors are not retryable")
	}
}
