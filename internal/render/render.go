// Package render writes task lists, calendar groupings and statistics to
// an io.Writer in text or JSON form. It is a pure presentation layer:
// everything it prints is derived state handed in by the caller.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"taskdeck/internal/tasks"
)

// Renderer writes formatted output.
type Renderer struct {
	writer io.Writer
	json   bool
}

// New creates a renderer. With jsonOutput the render methods emit JSON
// documents instead of text.
func New(writer io.Writer, jsonOutput bool) *Renderer {
	return &Renderer{writer: writer, json: jsonOutput}
}

// TaskList renders tasks one per line with status, title and deadline.
func (r *Renderer) TaskList(list []tasks.Task) error {
	if r.json {
		return r.encode(list)
	}

	if len(list) == 0 {
		_, err := fmt.Fprintln(r.writer, "No tasks.")
		return err
	}

	for _, task := range list {
		if _, err := fmt.Fprintln(r.writer, formatTaskLine(task)); err != nil {
			return err
		}
	}
	return nil
}

// Calendar renders date groups in order, one heading per calendar day,
// with the no-deadline group last.
func (r *Renderer) Calendar(groups []tasks.Group) error {
	if r.json {
		return r.encode(groups)
	}

	if len(groups) == 0 {
		_, err := fmt.Fprintln(r.writer, "No tasks.")
		return err
	}

	for i, group := range groups {
		if i > 0 {
			if _, err := fmt.Fprintln(r.writer); err != nil {
				return err
			}
		}
		heading := group.Key
		if group.HasDate {
			heading = group.Date.Format("Mon, 02 Jan 2006")
		}
		if _, err := fmt.Fprintf(r.writer, "%s\n", heading); err != nil {
			return err
		}
		for _, task := range group.Tasks {
			if _, err := fmt.Fprintf(r.writer, "  %s\n", formatTaskLine(task)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats renders the aggregate counts and completion percentage.
func (r *Renderer) Stats(stats tasks.Stats) error {
	if r.json {
		return r.encode(struct {
			tasks.Stats
			CompletionPercentage int `json:"completion_percentage"`
		}{stats, stats.CompletionPercentage()})
	}

	_, err := fmt.Fprintf(r.writer,
		"Total:     %d\nCompleted: %d\nPending:   %d\nDue soon:  %d\nProgress:  %d%% %s\n",
		stats.Total, stats.Completed, stats.Pending, stats.DueSoon,
		stats.CompletionPercentage(), progressBar(stats.CompletionPercentage(), 20))
	return err
}

// Task renders a single task in detail.
func (r *Renderer) Task(task tasks.Task) error {
	if r.json {
		return r.encode(task)
	}

	if _, err := fmt.Fprintf(r.writer, "%s\n", formatTaskLine(task)); err != nil {
		return err
	}
	if task.Description != "" {
		if _, err := fmt.Fprintf(r.writer, "  %s\n", task.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) encode(v any) error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTaskLine(task tasks.Task) string {
	parts := []string{formatStatus(task.Status), task.Title}
	if task.DueAt != nil {
		parts = append(parts, fmt.Sprintf("(due %s)", task.DueAt.Local().Format("2006-01-02")))
	}
	if task.ID != "" {
		parts = append(parts, fmt.Sprintf("#%s", shortID(task.ID)))
	}
	return strings.Join(parts, " ")
}

func formatStatus(status tasks.Status) string {
	if status == tasks.StatusCompleted {
		return "[DONE]"
	}
	return "[TODO]"
}

// shortID trims store-assigned ids to a reference-friendly prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

// FormatRelativeDue describes a deadline relative to now, for the TUI
// and list footers.
func FormatRelativeDue(due time.Time, now time.Time) string {
	days := int(due.Sub(now).Hours() / 24)
	switch {
	case due.Before(now):
		return "overdue"
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
