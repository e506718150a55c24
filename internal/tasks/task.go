// Package tasks implements the task repository: owner-scoped loading,
// derived statistics and date groupings, and mutations that update local
// state only after the remote store confirms the write.
package tasks

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Table is the canonical row-store table holding tasks.
const Table = "tasks"

// Status is the binary completion state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Opposite returns the flipped status. Toggling is the only status
// transition.
func (s Status) Opposite() Status {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// Task is a remote-owned row from the tasks table.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

// Completed reports whether the task is done.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// DecodeTasks converts raw store rows into tasks.
func DecodeTasks(rows []json.RawMessage) ([]Task, error) {
	tasks := make([]Task, 0, len(rows))
	for _, raw := range rows {
		var task Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task row: %w", err)
		}
		if task.Status == "" {
			task.Status = StatusPending
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Stats holds the aggregate counts derived from a task list.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	DueSoon   int `json:"due_soon"`
}

// CompletionPercentage returns round(completed/total*100), or 0 for an
// empty list.
func (s Stats) CompletionPercentage() int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
}

// dueSoonWindow is the horizon for the due-soon count.
const dueSoonWindow = 7 * 24 * time.Hour

// ComputeStats derives aggregate counts from an already-fetched task
// list. DueSoon counts pending tasks whose deadline falls in the
// half-open interval [now, now+7d).
func ComputeStats(tasks []Task, now time.Time) Stats {
	stats := Stats{Total: len(tasks)}
	horizon := now.Add(dueSoonWindow)

	for _, task := range tasks {
		if task.Completed() {
			stats.Completed++
			continue
		}
		stats.Pending++
		if task.DueAt != nil && !task.DueAt.Before(now) && task.DueAt.Before(horizon) {
			stats.DueSoon++
		}
	}
	return stats
}

// NoDateKey labels the group of tasks without a deadline.
const NoDateKey = "no date"

// Group is one calendar-date bucket of tasks.
type Group struct {
	Key     string // "2006-01-02", or NoDateKey
	Date    time.Time
	HasDate bool
	Tasks   []Task
}

// GroupByDueDate partitions tasks by the local calendar date of their
// deadline. Groups come back in ascending date order with the no-date
// group last; within a group, input order is preserved.
func GroupByDueDate(tasks []Task) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, task := range tasks {
		key := NoDateKey
		var date time.Time
		hasDate := false
		if task.DueAt != nil {
			local := task.DueAt.Local()
			date = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
			key = date.Format("2006-01-02")
			hasDate = true
		}

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Date: date, HasDate: hasDate})
		}
		groups[i].Tasks = append(groups[i].Tasks, task)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].HasDate != groups[j].HasDate {
			return groups[i].HasDate
		}
		return groups[i].Date.Before(groups[j].Date)
	})

	return groups
}
