package tasks

import (
	"context"
	"errors"
	"testing"

	"taskdeck/store/memory"
)

func newLoadedView(t *testing.T, s *memory.Store) *ListView {
	t.Helper()
	view := NewListView(NewRepository(s), ownerID, ListOptions{})
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return view
}

func TestViewStartsLoading(t *testing.T) {
	view := NewListView(NewRepository(memory.New()), ownerID, ListOptions{})
	if view.State() != StateLoading {
		t.Errorf("initial state = %v, want loading", view.State())
	}
}

func TestLoadResolvesToLoaded(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")

	view := newLoadedView(t, s)
	if view.State() != StateLoaded {
		t.Errorf("state = %v, want loaded", view.State())
	}
	if len(view.Tasks()) != 1 {
		t.Errorf("tasks = %v", view.Tasks())
	}
}

func TestLoadFailureResolvesToErrored(t *testing.T) {
	s := memory.New()
	s.SelectErr = errors.New("injected")

	view := NewListView(NewRepository(s), ownerID, ListOptions{})
	if err := view.Load(context.Background()); err == nil {
		t.Fatal("Load() should fail")
	}
	if view.State() != StateErrored {
		t.Errorf("state = %v, want errored", view.State())
	}
	if view.Err() == nil {
		t.Error("Err() should expose the load failure")
	}
}

func TestRetryReentersLoadingAndRecovers(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")
	s.SelectErr = errors.New("injected")

	view := NewListView(NewRepository(s), ownerID, ListOptions{})
	_ = view.Load(context.Background())
	if view.State() != StateErrored {
		t.Fatalf("state = %v, want errored", view.State())
	}

	s.SelectErr = nil
	if err := view.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if view.State() != StateLoaded || view.Err() != nil {
		t.Errorf("after retry: state = %v, err = %v", view.State(), view.Err())
	}
}

func TestToggleFlipsExactlyOnce(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")
	view := newLoadedView(t, s)

	updated, err := view.Toggle(context.Background(), "1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}
	if view.Tasks()[0].Status != StatusCompleted {
		t.Errorf("list entry = %q, want completed", view.Tasks()[0].Status)
	}
	if view.State() != StateLoaded {
		t.Errorf("state = %v, toggling must not leave loaded", view.State())
	}

	// Toggling again flips back
	updated, err = view.Toggle(context.Background(), "1")
	if err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if updated.Status != StatusPending {
		t.Errorf("status = %q, want pending", updated.Status)
	}
}

func TestToggleFailureLeavesListUntouched(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")
	view := newLoadedView(t, s)

	s.UpdateErr = errors.New("injected")
	if _, err := view.Toggle(context.Background(), "1"); err == nil {
		t.Fatal("Toggle() should surface the store failure")
	}
	if view.Tasks()[0].Status != StatusPending {
		t.Errorf("list entry = %q, want pending after failed write", view.Tasks()[0].Status)
	}
	if view.State() != StateLoaded {
		t.Errorf("state = %v, a failed mutation must not leave loaded", view.State())
	}
}

func TestToggleUnknownTask(t *testing.T) {
	view := newLoadedView(t, memory.New())
	if _, err := view.Toggle(context.Background(), "ghost"); err == nil {
		t.Error("Toggle() on unknown id should fail")
	}
}

// The delete scenario: removing id 2 shrinks the list by exactly one and
// mutates nothing else.
func TestDeleteShrinksListByOne(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "first", StatusPending, "2026-09-02T00:00:00Z")
	seedTask(s, "2", "second", StatusCompleted, "2026-09-03T00:00:00Z")
	seedTask(s, "3", "third", StatusPending, "2026-09-04T00:00:00Z")
	view := newLoadedView(t, s)

	before := view.Tasks()
	if err := view.Delete(context.Background(), "2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	after := view.Tasks()
	if len(after) != len(before)-1 {
		t.Fatalf("list length = %d, want %d", len(after), len(before)-1)
	}
	for _, task := range after {
		if task.ID == "2" {
			t.Error("deleted task still present")
		}
	}
	// Survivors are bit-identical
	if after[0] != before[0] || after[1] != before[2] {
		t.Errorf("surviving tasks mutated: %v vs %v", after, before)
	}
}

func TestDeleteFailureLeavesListUntouched(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")
	view := newLoadedView(t, s)

	s.DeleteErr = errors.New("injected")
	if err := view.Delete(context.Background(), "1"); err == nil {
		t.Fatal("Delete() should surface the store failure")
	}
	if len(view.Tasks()) != 1 {
		t.Errorf("list = %v, want untouched", view.Tasks())
	}
}

// A response arriving after Close must not modify the view's state.
func TestClosedViewIgnoresLateResponses(t *testing.T) {
	s := memory.New()
	seedTask(s, "1", "task", StatusPending, "")
	view := newLoadedView(t, s)

	view.Close()

	if _, err := view.Toggle(context.Background(), "1"); err != nil {
		t.Fatalf("Toggle() after close error = %v", err)
	}
	// The store write happened, the view state did not
	if s.Rows(Table)[0]["status"] != "completed" {
		t.Error("store write should still complete")
	}
	if view.Tasks()[0].Status != StatusPending {
		t.Errorf("closed view state mutated: %q", view.Tasks()[0].Status)
	}

	if err := view.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("Delete() after close error = %v", err)
	}
	if len(view.Tasks()) != 1 {
		t.Error("closed view list mutated by delete response")
	}

	// A late load result is dropped too
	_ = view.Load(context.Background())
	if view.State() == StateLoaded && len(view.Tasks()) == 0 {
		t.Error("closed view applied a late load result")
	}
}
