package antrian

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newResponse(body string) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseJSON(t *testing.T) {
	got, err := ParseJSON(newResponse(`{"a":[1,2]}`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || len(m["a"].([]any)) != 2 {
		t.Errorf("Unexpected result %#v", got)
	}

	got, err = ParseJSON(newResponse("  \n"))
	if err != nil || got != nil {
		t.Errorf("Expected nil for an empty body, got %v, %v", got, err)
	}

	if _, err := ParseJSON(newResponse("{broken")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestParseTextAndBytes(t *testing.T) {
	got, err := ParseText(newResponse("hi"))
	if err != nil || got != "hi" {
		t.Errorf("ParseText() = %v, %v", got, err)
	}

	raw, err := ParseBytes(newResponse("hi"))
	if err != nil || string(raw.([]byte)) != "hi" {
		t.Errorf("ParseBytes() = %v, %v", raw, err)
	}
}

func TestDefaultHooks(t *testing.T) {
	h := DefaultHooks()
	cfg := &CallConfig{}

	target, next, err := h.BeforeCall(context.Background(), "http://x", cfg)
	if err != nil || target != "http://x" || next != cfg {
		t.Errorf("Expected BeforeCall pass-through, got %q, %v, %v", target, next, err)
	}

	data, err := h.BeforeReturn("v", cfg)
	if err != nil || data != "v" {
		t.Errorf("Expected BeforeReturn pass-through, got %v, %v", data, err)
	}

	boom := errors.New("boom")
	if _, err := h.OnError(boom, cfg); !errors.Is(err, boom) {
		t.Errorf("Expected OnError to rethrow, got %v", err)
	}
}

func TestHooksMerge(t *testing.T) {
	custom := func(*http.Response) (any, error) { return "custom", nil }
	h := DefaultHooks().merge(Hooks{OnParse: custom})

	got, _ := h.OnParse(newResponse(""))
	if got != "custom" {
		t.Errorf("Expected merged OnParse, got %v", got)
	}
	if h.BeforeCall == nil || h.BeforeReturn == nil || h.OnError == nil {
		t.Error("Expected merge to keep the other hooks")
	}
}

func TestCallConfigMethod(t *testing.T) {
	var nilCfg *CallConfig
	if nilCfg.method() != http.MethodGet {
		t.Error("Expected GET for a nil config")
	}
	if (&CallConfig{}).method() != http.MethodGet {
		t.Error("Expected GET by default")
	}
	if (&CallConfig{Method: "patch"}).method() != http.MethodPatch {
		t.Error("Expected method to be upper-cased")
	}
}
