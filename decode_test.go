package antrian

import (
	"errors"
	"testing"
	"time"
)

type decodedTodo struct {
	ID       int           `json:"id"`
	Title    string        `json:"title"`
	Done     bool          `json:"done"`
	Tags     []string      `json:"tags"`
	Every    time.Duration `json:"every"`
	Deadline time.Time     `json:"deadline"`
}

func TestAsDecodesGenericJSON(t *testing.T) {
	raw := map[string]any{
		"id":       float64(3),
		"title":    "ship",
		"done":     true,
		"tags":     []any{"a", "b"},
		"every":    "1h",
		"deadline": "2024-05-01T10:00:00Z",
	}

	got, err := As[decodedTodo](raw)
	if err != nil {
		t.Fatalf("As() error = %v", err)
	}

	want := decodedTodo{
		ID:       3,
		Title:    "ship",
		Done:     true,
		Tags:     []string{"a", "b"},
		Every:    time.Hour,
		Deadline: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if got.ID != want.ID || got.Title != want.Title || got.Done != want.Done || got.Every != want.Every {
		t.Errorf("As() = %+v, want %+v", got, want)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "b" {
		t.Errorf("Expected tags [a b], got %v", got.Tags)
	}
	if !got.Deadline.Equal(want.Deadline) {
		t.Errorf("Expected deadline %v, got %v", want.Deadline, got.Deadline)
	}
}

func TestAsSlice(t *testing.T) {
	raw := []any{
		map[string]any{"id": float64(1)},
		map[string]any{"id": float64(2)},
	}

	got, err := As[[]decodedTodo](raw)
	if err != nil {
		t.Fatalf("As() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("Unexpected result %+v", got)
	}
}

func TestAsPassThrough(t *testing.T) {
	in := decodedTodo{ID: 9}
	got, err := As[decodedTodo](in)
	if err != nil || got.ID != 9 {
		t.Errorf("As() = %+v, %v; want pass-through", got, err)
	}

	zero, err := As[decodedTodo](nil)
	if err != nil || zero.ID != 0 {
		t.Errorf("Expected zero value for nil, got %+v, %v", zero, err)
	}
}

func TestAsParseError(t *testing.T) {
	_, err := As[decodedTodo]("not a map")

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeParse {
		t.Errorf("Expected Parse ClientError, got %v", err)
	}
}
