// Package prompt handles interactive prompts with no-prompt mode support.
// It provides task selection with filtering and an interactive add mode
// with field validation.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taskdeck/internal/tasks"
	"taskdeck/internal/utils"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
)

// TaskSelector narrows a list of candidate tasks down to one, interactively.
type TaskSelector struct {
	Tasks    []tasks.Task
	Prompt   string
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run executes the task selection prompt.
// If NoPrompt is true, returns ErrNoPromptMode.
// If there is exactly one task, auto-selects it.
// Otherwise, prompts the user to filter and select a task.
func (s *TaskSelector) Run() (*tasks.Task, error) {
	if s.NoPrompt {
		return nil, ErrNoPromptMode
	}

	if len(s.Tasks) == 0 {
		return nil, ErrNoTasks
	}

	if len(s.Tasks) == 1 {
		return &s.Tasks[0], nil
	}

	writer := s.Writer
	if writer == nil {
		writer = io.Discard
	}

	scanner := bufio.NewScanner(s.Reader)

	_, _ = fmt.Fprintf(writer, "%s\nFilter (or press Enter to show all): ", s.Prompt)
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}
	filter := strings.TrimSpace(scanner.Text())

	var filtered []tasks.Task
	if filter == "" {
		filtered = s.Tasks
	} else {
		filterLower := strings.ToLower(filter)
		for _, t := range s.Tasks {
			if strings.Contains(strings.ToLower(t.Title), filterLower) {
				filtered = append(filtered, t)
			}
		}
	}

	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}

	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(writer, "Auto-selected: %s\n", filtered[0].Title)
		return &filtered[0], nil
	}

	for i, t := range filtered {
		_, _ = fmt.Fprintf(writer, "  %d) %s\n", i+1, formatTaskLine(t))
	}

	_, _ = fmt.Fprint(writer, "Select (0 to cancel): ")
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}

	input := strings.TrimSpace(scanner.Text())
	num, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %s", input)
	}

	if num == 0 {
		return nil, ErrSelectionCancelled
	}

	if num < 1 || num > len(filtered) {
		return nil, fmt.Errorf("selection out of range: %d", num)
	}

	return &filtered[num-1], nil
}

// formatTaskLine formats a task for display with status, due date and id.
func formatTaskLine(t tasks.Task) string {
	parts := []string{t.Title}

	meta := []string{string(t.Status)}
	if t.DueAt != nil {
		meta = append(meta, fmt.Sprintf("due: %s", t.DueAt.Local().Format("2006-01-02")))
	}
	if t.ID != "" {
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		meta = append(meta, "#"+id)
	}

	parts = append(parts, fmt.Sprintf("[%s]", strings.Join(meta, ", ")))
	return strings.Join(parts, " ")
}

// AddFields holds the field values collected during interactive add mode.
type AddFields struct {
	Title       string
	Description string
	DueDate     string
}

// InteractiveAdder provides sequential field prompts with validation
// for adding a task when no title is provided.
type InteractiveAdder struct {
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run executes the interactive add mode, prompting for each field
// sequentially: title (required), description, due date.
func (a *InteractiveAdder) Run() (*AddFields, error) {
	if a.NoPrompt {
		return nil, ErrNoPromptMode
	}

	writer := a.Writer
	if writer == nil {
		writer = io.Discard
	}

	scanner := bufio.NewScanner(a.Reader)
	fields := &AddFields{}

	// Title (required, non-empty)
	for {
		_, _ = fmt.Fprint(writer, "Title (required): ")
		if !scanner.Scan() {
			return nil, errors.New("no input for title")
		}
		fields.Title = strings.TrimSpace(scanner.Text())
		if fields.Title != "" {
			break
		}
		_, _ = fmt.Fprintln(writer, "Title cannot be empty.")
	}

	// Description (optional)
	_, _ = fmt.Fprint(writer, "Description (optional): ")
	if scanner.Scan() {
		fields.Description = strings.TrimSpace(scanner.Text())
	}

	// Due date (optional, validated)
	for {
		_, _ = fmt.Fprint(writer, "Due date (YYYY-MM-DD, today, tomorrow, +Nd, optional): ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			break
		}
		if _, err := utils.ParseDateFlag(input); err != nil {
			_, _ = fmt.Fprintf(writer, "Invalid date: %s. Use YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm\n", input)
			continue
		}
		fields.DueDate = input
		break
	}

	return fields, nil
}
