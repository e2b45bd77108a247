package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := InvalidInput("Test.Op", nil, "test message")

	if err.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, err.Code)
	}

	if err.Error() != "test message" {
		t.Errorf("expected error string 'test message', got '%s'", err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("cause error")
	err := Internal("Test.Op", cause, "test message")

	expected := "test message: cause error"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "not found error",
			err:      NotFound("Test.Op", nil, "not found"),
			expected: true,
		},
		{
			name:     "wrapped not found error",
			err:      fmt.Errorf("lookup: %w", NotFound("Test.Op", nil, "not found")),
			expected: true,
		},
		{
			name:     "other error",
			err:      InvalidInput("Test.Op", nil, "bad request"),
			expected: false,
		},
		{
			name:     "non-custom error",
			err:      fmt.Errorf("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.expected {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCodeAndMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{"invalid input", InvalidInput("op", nil, "bad"), http.StatusBadRequest, "bad"},
		{"conflict", Conflict("op", nil, "busy"), http.StatusConflict, "busy"},
		{"unavailable", Unavailable("op", nil, "upstream"), http.StatusBadGateway, "upstream"},
		{"internal", Internal("op", nil, "boom"), http.StatusInternalServerError, "boom"},
		{"plain error", fmt.Errorf("raw"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.wantCode {
				t.Errorf("Code() = %d, want %d", got, tt.wantCode)
			}
			if got := Message(tt.err); got != tt.wantMessage {
				t.Errorf("Message() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}
