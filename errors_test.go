package antrian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClientErrorError(t *testing.T) {
	err := &ClientError{
		Type:      ErrorTypeServer,
		Message:   "unexpected status 503",
		Cause:     errors.New("upstream"),
		RequestID: "req-1",
		Attempt:   2,
	}

	want := "[req-1] Server: unexpected status 503 (upstream) (attempt 3)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var nilErr *ClientError
	if nilErr.Error() != "<nil>" {
		t.Errorf("Expected <nil> for nil receiver, got %q", nilErr.Error())
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := fmt.Errorf("wrapped: %w", &ClientError{Type: ErrorTypeNetwork, Cause: cause})

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeNetwork {
		t.Errorf("Expected errors.As to find the ClientError, got %v", clientErr)
	}
}

func TestClientErrorIs(t *testing.T) {
	timeout := &ClientError{Type: ErrorTypeTimeout}
	open := &ClientError{Type: ErrorTypeCircuitOpen}
	server := &ClientError{Type: ErrorTypeServer}

	if !errors.Is(timeout, ErrTimeout) {
		t.Error("Expected Timeout error to match ErrTimeout")
	}
	if !errors.Is(open, ErrCircuitOpen) {
		t.Error("Expected CircuitOpen error to match ErrCircuitOpen")
	}
	if errors.Is(server, ErrTimeout) || errors.Is(server, ErrCircuitOpen) {
		t.Error("Expected Server error not to match sentinels")
	}
	if !errors.Is(server, &ClientError{Type: ErrorTypeServer}) {
		t.Error("Expected ClientErrors of the same type to match")
	}
}

func TestClientErrorDebugInfo(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeClient,
		Message:    "unexpected status 404",
		RequestID:  "req-9",
		Method:     "GET",
		URL:        "http://example.com/x",
		StatusCode: 404,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:   time.Second,
	}

	info := err.DebugInfo()
	for _, want := range []string{
		"Error Type: Client",
		"Request ID: req-9",
		"Method: GET",
		"URL: http://example.com/x",
		"Status Code: 404",
		"Timestamp: 2024-01-01T00:00:00Z",
		"Duration: 1s",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo() missing %q:\n%s", want, info)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"network", &ClientError{Type: ErrorTypeNetwork}, true},
		{"server", &ClientError{Type: ErrorTypeServer}, true},
		{"timeout", &ClientError{Type: ErrorTypeTimeout}, true},
		{"circuit open", &ClientError{Type: ErrorTypeCircuitOpen}, true},
		{"too many requests", &ClientError{Type: ErrorTypeClient, StatusCode: 429}, true},
		{"not found", &ClientError{Type: ErrorTypeClient, StatusCode: 404}, false},
		{"parse", &ClientError{Type: ErrorTypeParse}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDeadline(t *testing.T) {
	if !isDeadline(fmt.Errorf("get: %w", context.DeadlineExceeded)) {
		t.Error("Expected wrapped DeadlineExceeded to be a deadline")
	}
	if isDeadline(context.Canceled) {
		t.Error("Expected Canceled not to be a deadline")
	}
}

func TestClassifyStatus(t *testing.T) {
	if classifyStatus(500) != ErrorTypeServer || classifyStatus(503) != ErrorTypeServer {
		t.Error("Expected 5xx to be Server errors")
	}
	if classifyStatus(400) != ErrorTypeClient || classifyStatus(404) != ErrorTypeClient {
		t.Error("Expected 4xx to be Client errors")
	}
}
