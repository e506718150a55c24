package tasks

import (
	"context"
	"sync"

	"taskdeck/internal/utils"
)

// ViewState is the lifecycle state of a task-list view.
type ViewState int

const (
	StateLoading ViewState = iota
	StateLoaded
	StateErrored
)

func (s ViewState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ListView owns the task list state for one mounted view. It starts in
// StateLoading; Load resolves to StateLoaded or StateErrored, and Retry
// re-enters StateLoading. Mutations rebuild the full list and only after
// the store confirms the write. A closed view ignores any response that
// arrives afterwards, so late completions never touch dead state.
type ListView struct {
	repo    *Repository
	ownerID string
	opts    ListOptions

	mu     sync.Mutex
	state  ViewState
	tasks  []Task
	err    error
	closed bool
}

// NewListView creates a view in StateLoading for the given owner.
func NewListView(repo *Repository, ownerID string, opts ListOptions) *ListView {
	return &ListView{
		repo:    repo,
		ownerID: ownerID,
		opts:    opts,
		state:   StateLoading,
	}
}

// Load fetches the owner's tasks and resolves the loading state.
func (v *ListView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.state = StateLoading
	v.err = nil
	v.mu.Unlock()

	tasks, err := v.repo.List(ctx, v.ownerID, v.opts)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return err
	}
	if err != nil {
		v.state = StateErrored
		v.err = err
		return err
	}
	v.state = StateLoaded
	v.tasks = tasks
	return nil
}

// Retry re-enters the loading state after an error.
func (v *ListView) Retry(ctx context.Context) error {
	return v.Load(ctx)
}

// Toggle flips a task's completion status. On success the list entry is
// replaced; on failure the list is untouched and the error is returned.
func (v *ListView) Toggle(ctx context.Context, taskID string) (Task, error) {
	task, ok := v.find(taskID)
	if !ok {
		return Task{}, utils.ErrTaskNotFound(taskID)
	}

	updated, err := v.repo.Toggle(ctx, task)
	if err != nil {
		return Task{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return updated, nil
	}
	rebuilt := make([]Task, 0, len(v.tasks))
	for _, t := range v.tasks {
		if t.ID == updated.ID {
			rebuilt = append(rebuilt, updated)
		} else {
			rebuilt = append(rebuilt, t)
		}
	}
	v.tasks = rebuilt
	return updated, nil
}

// Delete removes a task. Confirmation happens before this call. On
// success the list shrinks by exactly one entry.
func (v *ListView) Delete(ctx context.Context, taskID string) error {
	task, ok := v.find(taskID)
	if !ok {
		return utils.ErrTaskNotFound(taskID)
	}

	if err := v.repo.Delete(ctx, task); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	rebuilt := make([]Task, 0, len(v.tasks))
	for _, t := range v.tasks {
		if t.ID != taskID {
			rebuilt = append(rebuilt, t)
		}
	}
	v.tasks = rebuilt
	return nil
}

// Tasks returns a copy of the current list.
func (v *ListView) Tasks() []Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Task, len(v.tasks))
	copy(out, v.tasks)
	return out
}

// State returns the view's lifecycle state.
func (v *ListView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the error that put the view into StateErrored.
func (v *ListView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Close marks the view unmounted. In-flight operations complete against
// the store but their responses no longer modify this view.
func (v *ListView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *ListView) find(taskID string) (Task, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range v.tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}
