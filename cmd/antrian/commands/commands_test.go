package commands

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ambiyansyah-risyal/antrian"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	t.Cleanup(func() {
		root.SetArgs(nil)
		cfgFile = ""
		getHigh, getNow, getText, getDurable, getHold = false, false, false, false, false
		getTags, getDeps, getTTL, getRepeat, getTimeout, getMetricsAddr = nil, nil, "", 1, 0, ""
	})

	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	saved := antrian.Build()
	antrian.SetBuildInfo("1.2.3", "abc123", "2026-01-02")
	t.Cleanup(func() { antrian.SetBuildInfo(saved.Version, saved.Commit, saved.Date) })

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	for _, want := range []string{"antrian 1.2.3", "commit", "abc123", "2026-01-02"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "antrian.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  max_processing: 6\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, "queue.max_processing") || !strings.Contains(out, "6") {
		t.Errorf("Expected configured value in output, got:\n%s", out)
	}
}

func TestGetCommandCachesAcrossRounds(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"title":"cached"}`))
	}))
	defer server.Close()

	out, err := execute(t, "get", server.URL+"/todos/1", "--tags", "todos", "--repeat", "3")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected one origin hit across rounds, got %d", n)
	}
	if strings.Count(out, `{"title":"cached"}`) != 3 {
		t.Errorf("Expected three result rows, got:\n%s", out)
	}
}

func TestGetCommandReportsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	out, err := execute(t, "get", server.URL, "--text")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, "error:") {
		t.Errorf("Expected error row, got:\n%s", out)
	}
}

func TestGetCommandInvalidTTL(t *testing.T) {
	_, err := execute(t, "get", "http://example.com", "--ttl", "sometime")
	if err == nil {
		t.Error("Expected invalid --ttl to fail")
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   fetchResult
		want string
	}{
		{"error", fetchResult{err: errors.New("boom")}, "error: boom"},
		{"empty", fetchResult{}, "<empty>"},
		{"text", fetchResult{value: "a\n  b"}, "a b"},
		{"json", fetchResult{value: map[string]any{"k": 1}}, `{"k":1}`},
		{"long", fetchResult{value: strings.Repeat("x", 100)}, strings.Repeat("x", 77) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.in); got != tt.want {
				t.Errorf("summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	data := newTableData("Key", "Value")
	data.addRow("alpha", "1")
	data.addRow("beta", "2")
	printTable(&buf, data)

	out := buf.String()
	for _, want := range []string{"KEY", "VALUE", "alpha", "beta"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in table output:\n%s", want, out)
		}
	}
}
