package antrian

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrTimeout is returned when a call exceeds its configured deadline
	ErrTimeout = errors.New("antrian: call timed out")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("antrian: circuit open")

	// ErrQueueClosed is returned when a job is submitted to a closed queue
	ErrQueueClosed = errors.New("antrian: queue closed")

	// ErrJobDiscarded is returned by Wait when Clear drops its job before it
	// starts
	ErrJobDiscarded = errors.New("antrian: job discarded")
)

// Error type labels carried by ClientError.Type.
const (
	ErrorTypeNetwork     = "Network"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeClient      = "Client"
	ErrorTypeServer      = "Server"
	ErrorTypeParse       = "Parse"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeValidation  = "Validation"
	ErrorTypeHook        = "Hook"
)

// ClientError describes a failed transport call with enough context to debug it.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Body       []byte
	Attempt    int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt+1)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is. A Timeout ClientError also matches
// ErrTimeout and a CircuitOpen one matches ErrCircuitOpen.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d\n", e.Attempt+1)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTimeout reports whether err is a deadline failure raised by a Caller.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTransient determines if an error represents a failure that might succeed
// on retry: network errors, timeouts, 5xx, 429 and an open circuit.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeServer:
			return true
		case ErrorTypeClient:
			return clientErr.StatusCode == 429
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// classifyStatus maps an HTTP status code to an error type.
func classifyStatus(statusCode int) string {
	if statusCode >= 500 {
		return ErrorTypeServer
	}
	return ErrorTypeClient
}

// isDeadline reports whether err was produced by an expired context deadline.
func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
