package tasks

import (
	"context"
	"encoding/json"
	"time"

	"taskdeck/internal/utils"
	"taskdeck/store"
)

// ListOptions control ordering and filtering for List.
type ListOptions struct {
	OrderBy   string
	Ascending bool
	Limit     int
	Status    Status // "" means all statuses
}

// Repository loads and mutates tasks through the row store. It holds no
// list state itself; ListView layers the per-view state machine on top.
type Repository struct {
	store store.Table
}

// NewRepository creates a repository backed by the given row store.
func NewRepository(s store.Table) *Repository {
	return &Repository{store: s}
}

// List fetches the owner's tasks. Owner scoping is applied
// unconditionally; callers cannot request a global list.
func (r *Repository) List(ctx context.Context, ownerID string, opts ListOptions) ([]Task, error) {
	filters := []store.Filter{store.Eq("user_id", ownerID)}
	if opts.Status != "" {
		if !opts.Status.Valid() {
			return nil, utils.ErrInvalidStatus(string(opts.Status),
				[]string{string(StatusPending), string(StatusCompleted)})
		}
		filters = append(filters, store.Eq("status", string(opts.Status)))
	}

	orderBy := opts.OrderBy
	ascending := opts.Ascending
	if orderBy == "" {
		orderBy = "due_at"
		ascending = true
	}

	rows, err := r.store.Select(ctx, Table, store.Query{
		Filters:   filters,
		OrderBy:   orderBy,
		Ascending: ascending,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, err
	}
	return DecodeTasks(rows)
}

// Toggle flips a task's completion status in the store and returns the
// updated task. The caller's local state must change only on success.
func (r *Repository) Toggle(ctx context.Context, task Task) (Task, error) {
	next := task.Status.Opposite()

	_, err := r.store.Update(ctx, Table,
		map[string]any{"status": string(next)},
		ownerFilters(task))
	if err != nil {
		return Task{}, err
	}

	task.Status = next
	return task, nil
}

// Delete removes a task from the store. Confirmation is the caller's
// responsibility.
func (r *Repository) Delete(ctx context.Context, task Task) error {
	return r.store.Delete(ctx, Table, ownerFilters(task))
}

// Draft holds the user-editable fields for Upsert.
type Draft struct {
	Title       string
	Description string
	DueAt       *time.Time
}

// Upsert validates the draft and writes it to the store. An empty title
// fails before any network call. With existingID it updates that row;
// otherwise it inserts a new pending task owned by ownerID.
func (r *Repository) Upsert(ctx context.Context, ownerID string, draft Draft, existingID string) (Task, error) {
	if err := utils.ValidateTitle(draft.Title); err != nil {
		return Task{}, err
	}

	if existingID != "" {
		fields := map[string]any{
			"title":       draft.Title,
			"description": draft.Description,
			"due_at":      encodeDueAt(draft.DueAt),
		}
		rows, err := r.store.Update(ctx, Table, fields, []store.Filter{
			store.Eq("id", existingID),
			store.Eq("user_id", ownerID),
		})
		if err != nil {
			return Task{}, err
		}
		return firstTask(rows, Task{
			ID:          existingID,
			OwnerID:     ownerID,
			Title:       draft.Title,
			Description: draft.Description,
			DueAt:       draft.DueAt,
		})
	}

	row := map[string]any{
		"user_id":     ownerID,
		"title":       draft.Title,
		"description": draft.Description,
		"status":      string(StatusPending),
		"due_at":      encodeDueAt(draft.DueAt),
	}
	rows, err := r.store.Insert(ctx, Table, []map[string]any{row})
	if err != nil {
		return Task{}, err
	}
	return firstTask(rows, Task{
		OwnerID:     ownerID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      StatusPending,
		DueAt:       draft.DueAt,
	})
}

// ownerFilters scopes a mutation to both the task and its owner, so a
// forged id can never touch another user's row even if the store's own
// policies were misconfigured.
func ownerFilters(task Task) []store.Filter {
	filters := []store.Filter{store.Eq("id", task.ID)}
	if task.OwnerID != "" {
		filters = append(filters, store.Eq("user_id", task.OwnerID))
	}
	return filters
}

func encodeDueAt(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// firstTask decodes the store's returned representation, falling back to
// the locally assembled task when the store returned no rows.
func firstTask(rows []json.RawMessage, fallback Task) (Task, error) {
	if len(rows) == 0 {
		return fallback, nil
	}
	decoded, err := DecodeTasks(rows[:1])
	if err != nil {
		return Task{}, err
	}
	return decoded[0], nil
}
