package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"taskdeck/internal/tasks"
)

func dueDate(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &t
}

func sampleTasks() []tasks.Task {
	return []tasks.Task{
		{ID: "aaaa1111-0000", Title: "Buy milk", Status: tasks.StatusPending, DueAt: dueDate(2030, time.June, 15)},
		{ID: "bbbb2222-0000", Title: "Buy bread", Status: tasks.StatusPending},
		{ID: "cccc3333-0000", Title: "Ship release", Status: tasks.StatusCompleted},
	}
}

func TestSelectorNoPromptMode(t *testing.T) {
	s := &TaskSelector{Tasks: sampleTasks(), NoPrompt: true}
	_, err := s.Run()
	if !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("expected ErrNoPromptMode, got %v", err)
	}
}

func TestSelectorNoTasks(t *testing.T) {
	s := &TaskSelector{Reader: strings.NewReader("")}
	_, err := s.Run()
	if !errors.Is(err, ErrNoTasks) {
		t.Errorf("expected ErrNoTasks, got %v", err)
	}
}

func TestSelectorAutoSelectsSingleTask(t *testing.T) {
	s := &TaskSelector{
		Tasks:  sampleTasks()[:1],
		Reader: strings.NewReader(""),
	}
	task, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Buy milk" {
		t.Errorf("expected auto-selected task, got %q", task.Title)
	}
}

func TestSelectorFilterNarrowsToOne(t *testing.T) {
	var out bytes.Buffer
	s := &TaskSelector{
		Tasks:  sampleTasks(),
		Prompt: "Multiple tasks match",
		Reader: strings.NewReader("milk\n"),
		Writer: &out,
	}
	task, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Buy milk" {
		t.Errorf("expected filtered task, got %q", task.Title)
	}
	if !strings.Contains(out.String(), "Auto-selected: Buy milk") {
		t.Errorf("expected auto-select notice, got: %s", out.String())
	}
}

func TestSelectorNumberedSelection(t *testing.T) {
	var out bytes.Buffer
	s := &TaskSelector{
		Tasks:  sampleTasks(),
		Reader: strings.NewReader("buy\n2\n"),
		Writer: &out,
	}
	task, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Buy bread" {
		t.Errorf("expected second match, got %q", task.Title)
	}
	if !strings.Contains(out.String(), "1) Buy milk") {
		t.Errorf("expected numbered listing, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "due: 2030-06-15") {
		t.Errorf("expected due date metadata, got: %s", out.String())
	}
}

func TestSelectorCancel(t *testing.T) {
	s := &TaskSelector{
		Tasks:  sampleTasks(),
		Reader: strings.NewReader("\n0\n"),
		Writer: &bytes.Buffer{},
	}
	_, err := s.Run()
	if !errors.Is(err, ErrSelectionCancelled) {
		t.Errorf("expected ErrSelectionCancelled, got %v", err)
	}
}

func TestSelectorNoMatches(t *testing.T) {
	s := &TaskSelector{
		Tasks:  sampleTasks(),
		Reader: strings.NewReader("zzz\n"),
		Writer: &bytes.Buffer{},
	}
	_, err := s.Run()
	if !errors.Is(err, ErrNoMatches) {
		t.Errorf("expected ErrNoMatches, got %v", err)
	}
}

func TestSelectorOutOfRange(t *testing.T) {
	s := &TaskSelector{
		Tasks:  sampleTasks(),
		Reader: strings.NewReader("\n9\n"),
		Writer: &bytes.Buffer{},
	}
	_, err := s.Run()
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("expected out-of-range error, got %v", err)
	}
}

func TestInteractiveAdderCollectsFields(t *testing.T) {
	var out bytes.Buffer
	a := &InteractiveAdder{
		Reader: strings.NewReader("Buy milk\nFrom the corner shop\n2030-06-15\n"),
		Writer: &out,
	}
	fields, err := a.Run()
	if err != nil {
		t.Fatal(err)
	}
	if fields.Title != "Buy milk" {
		t.Errorf("Title = %q", fields.Title)
	}
	if fields.Description != "From the corner shop" {
		t.Errorf("Description = %q", fields.Description)
	}
	if fields.DueDate != "2030-06-15" {
		t.Errorf("DueDate = %q", fields.DueDate)
	}
}

func TestInteractiveAdderRejectsEmptyTitle(t *testing.T) {
	var out bytes.Buffer
	a := &InteractiveAdder{
		Reader: strings.NewReader("\nBuy milk\n\n\n"),
		Writer: &out,
	}
	fields, err := a.Run()
	if err != nil {
		t.Fatal(err)
	}
	if fields.Title != "Buy milk" {
		t.Errorf("expected re-prompt for title, got %q", fields.Title)
	}
	if !strings.Contains(out.String(), "Title cannot be empty.") {
		t.Errorf("expected empty-title notice, got: %s", out.String())
	}
}

func TestInteractiveAdderRepromptsInvalidDate(t *testing.T) {
	var out bytes.Buffer
	a := &InteractiveAdder{
		Reader: strings.NewReader("Buy milk\n\nsomeday\n2030-06-15\n"),
		Writer: &out,
	}
	fields, err := a.Run()
	if err != nil {
		t.Fatal(err)
	}
	if fields.DueDate != "2030-06-15" {
		t.Errorf("expected re-prompted date, got %q", fields.DueDate)
	}
	if !strings.Contains(out.String(), "Invalid date: someday") {
		t.Errorf("expected invalid-date notice, got: %s", out.String())
	}
}

func TestInteractiveAdderNoPromptMode(t *testing.T) {
	a := &InteractiveAdder{NoPrompt: true}
	_, err := a.Run()
	if !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("expected ErrNoPromptMode, got %v", err)
	}
}
