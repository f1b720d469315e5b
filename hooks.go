package antrian

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CallConfig holds the per-call transport options a hook may inspect or
// rewrite.
type CallConfig struct {
	Method  string
	Header  http.Header
	Body    any
	Timeout time.Duration
}

func (cfg *CallConfig) method() string {
	if cfg == nil || cfg.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(cfg.Method)
}

// ParseFunc decodes a successful response. The Caller closes the body.
type ParseFunc func(resp *http.Response) (any, error)

// Hooks intercept every call made through a Caller.
type Hooks struct {
	// BeforeCall may rewrite the target and config, or abort the call.
	BeforeCall func(ctx context.Context, target string, cfg *CallConfig) (string, *CallConfig, error)
	// OnParse decodes responses when the call has no parse override.
	OnParse ParseFunc
	// BeforeReturn may transform the parsed value.
	BeforeReturn func(data any, cfg *CallConfig) (any, error)
	// OnError sees every failure. Returning a nil error recovers the call
	// with the returned value.
	OnError func(err error, cfg *CallConfig) (any, error)
}

// DefaultHooks pass the call through unchanged, decode JSON and rethrow
// errors.
func DefaultHooks() Hooks {
	return Hooks{
		BeforeCall: func(_ context.Context, target string, cfg *CallConfig) (string, *CallConfig, error) {
			return target, cfg, nil
		},
		OnParse: ParseJSON,
		BeforeReturn: func(data any, _ *CallConfig) (any, error) {
			return data, nil
		},
		OnError: func(err error, _ *CallConfig) (any, error) {
			return nil, err
		},
	}
}

// merge overlays the non-nil fields of o.
func (h Hooks) merge(o Hooks) Hooks {
	if o.BeforeCall != nil {
		h.BeforeCall = o.BeforeCall
	}
	if o.OnParse != nil {
		h.OnParse = o.OnParse
	}
	if o.BeforeReturn != nil {
		h.BeforeReturn = o.BeforeReturn
	}
	if o.OnError != nil {
		h.OnError = o.OnError
	}
	return h
}

// ParseJSON decodes a JSON body into generic values. An empty body yields nil.
func ParseJSON(resp *http.Response) (any, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return out, nil
}

// ParseText returns the body as a string.
func ParseText(resp *http.Response) (any, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return string(body), nil
}

// ParseBytes returns the raw body.
func ParseBytes(resp *http.Response) (any, error) {
	return io.ReadAll(resp.Body)
}

// encodeBody turns a call body into bytes plus the content type it implies.
// []byte, string, io.Reader and url.Values pass through; anything else is
// JSON encoded.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		return data, "", err
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode body: %w", err)
		}
		return data, "application/json", nil
	}
}
