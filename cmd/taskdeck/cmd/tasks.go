package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"taskdeck/internal/prompt"
	"taskdeck/internal/render"
	"taskdeck/internal/tasks"
	"taskdeck/internal/utils"
	"taskdeck/store"
)

// newListCmd creates the 'list' command
func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			cached, _ := cmd.Flags().GetBool("cached")
			return doList(cmd.Context(), a, status, limit, cached, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status (pending, completed)")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of tasks to show")
	cmd.Flags().Bool("cached", false, "Read from the local snapshot without contacting the store")
	return cmd
}

// newAddCmd creates the 'add' command
func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a new task",
		Long:  "Add a new task. Without a title argument an interactive prompt collects the fields.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			description, _ := cmd.Flags().GetString("desc")
			due, _ := cmd.Flags().GetString("due")
			return doAdd(cmd.Context(), a, strings.Join(args, " "), description, due, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringP("desc", "d", "", "Task description")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm)")
	return cmd
}

// newEditCmd creates the 'edit' command
func newEditCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <task>",
		Short: "Edit a task's title, description or due date",
		Long:  "Edit a task identified by its id, an id prefix or its exact title.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			edit := editFlags{}
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				edit.title = &v
			}
			if cmd.Flags().Changed("desc") {
				v, _ := cmd.Flags().GetString("desc")
				edit.description = &v
			}
			if cmd.Flags().Changed("due") {
				v, _ := cmd.Flags().GetString("due")
				edit.due = &v
			}
			return doEdit(cmd.Context(), a, args[0], edit, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringP("desc", "d", "", "New description")
	cmd.Flags().String("due", "", "New due date, empty string clears it")
	return cmd
}

// newDoneCmd creates the 'done' command
func newDoneCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task>",
		Short: "Toggle a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doDone(cmd.Context(), a, args[0], stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newRmCmd creates the 'rm' command
func newRmCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doRm(cmd.Context(), a, args[0], stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newStatsCmd creates the 'stats' command
func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doStats(cmd.Context(), a, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCalendarCmd creates the 'calendar' command
func newCalendarCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Show tasks grouped by due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doCalendar(cmd.Context(), a, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doList(ctx context.Context, a *app, status string, limit int, cached bool, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	opts := tasks.ListOptions{
		Status: tasks.Status(status),
		Limit:  limit,
	}

	var list []tasks.Task
	if cached {
		list, err = a.cachedTasks(ctx, sess.User.ID, opts)
	} else {
		list, err = a.loadTasks(ctx, sess, opts, stdout)
	}
	if err != nil {
		return err
	}

	if err := render.New(stdout, a.jsonOutput()).TaskList(list); err != nil {
		return err
	}
	printResult(stdout, a.cli, ResultInfoOnly)
	return nil
}

func doAdd(ctx context.Context, a *app, title, description, due string, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	if strings.TrimSpace(title) == "" && !a.cli.NoPrompt {
		adder := &prompt.InteractiveAdder{Reader: a.promptInput(), Writer: stdout}
		fields, err := adder.Run()
		if err != nil {
			return err
		}
		title = fields.Title
		if fields.Description != "" {
			description = fields.Description
		}
		if fields.DueDate != "" {
			due = fields.DueDate
		}
	}

	dueAt, err := utils.ParseDateFlag(due)
	if err != nil {
		return err
	}

	task, err := a.repo.Upsert(ctx, sess.User.ID, tasks.Draft{
		Title:       title,
		Description: description,
		DueAt:       dueAt,
	}, "")
	if err != nil {
		return err
	}
	a.invalidateCache(ctx, sess.User.ID)

	if a.jsonOutput() {
		return render.New(stdout, true).Task(task)
	}
	_, _ = fmt.Fprintf(stdout, "Added task: %s\n", task.Title)
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

// editFlags carries the changed edit fields. Nil means the flag was not set
// and the stored value stays as it is.
type editFlags struct {
	title       *string
	description *string
	due         *string
}

func doEdit(ctx context.Context, a *app, ref string, edit editFlags, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	task, err := a.resolveTask(ctx, sess.User.ID, ref, stdout)
	if err != nil {
		return err
	}

	draft := tasks.Draft{
		Title:       task.Title,
		Description: task.Description,
		DueAt:       task.DueAt,
	}
	if edit.title != nil {
		draft.Title = *edit.title
	}
	if edit.description != nil {
		draft.Description = *edit.description
	}
	if edit.due != nil {
		dueAt, err := utils.ParseDateFlag(*edit.due)
		if err != nil {
			return err
		}
		draft.DueAt = dueAt
	}

	updated, err := a.repo.Upsert(ctx, sess.User.ID, draft, task.ID)
	if err != nil {
		return err
	}
	a.invalidateCache(ctx, sess.User.ID)

	if a.jsonOutput() {
		return render.New(stdout, true).Task(updated)
	}
	_, _ = fmt.Fprintf(stdout, "Updated task: %s\n", updated.Title)
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doDone(ctx context.Context, a *app, ref string, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	task, err := a.resolveTask(ctx, sess.User.ID, ref, stdout)
	if err != nil {
		return err
	}

	updated, err := a.repo.Toggle(ctx, task)
	if err != nil {
		return err
	}
	a.invalidateCache(ctx, sess.User.ID)

	if a.jsonOutput() {
		return render.New(stdout, true).Task(updated)
	}
	if updated.Completed() {
		_, _ = fmt.Fprintf(stdout, "Completed: %s\n", updated.Title)
	} else {
		_, _ = fmt.Fprintf(stdout, "Reopened: %s\n", updated.Title)
	}
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doRm(ctx context.Context, a *app, ref string, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	task, err := a.resolveTask(ctx, sess.User.ID, ref, stdout)
	if err != nil {
		return err
	}

	if !a.cli.NoPrompt {
		answer, err := promptLine(a, stdout, fmt.Sprintf("Delete %q? [y/N] ", task.Title))
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	if err := a.repo.Delete(ctx, task); err != nil {
		return err
	}
	a.invalidateCache(ctx, sess.User.ID)

	if a.jsonOutput() {
		return writeJSON(stdout, map[string]string{"status": "deleted", "id": task.ID})
	}
	_, _ = fmt.Fprintf(stdout, "Deleted task: %s\n", task.Title)
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doStats(ctx context.Context, a *app, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	list, err := a.loadTasks(ctx, sess, tasks.ListOptions{}, stdout)
	if err != nil {
		return err
	}

	stats := tasks.ComputeStats(list, time.Now())
	if err := render.New(stdout, a.jsonOutput()).Stats(stats); err != nil {
		return err
	}
	printResult(stdout, a.cli, ResultInfoOnly)
	return nil
}

func doCalendar(ctx context.Context, a *app, stdout io.Writer) error {
	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	list, err := a.loadTasks(ctx, sess, tasks.ListOptions{}, stdout)
	if err != nil {
		return err
	}

	groups := tasks.GroupByDueDate(list)
	if err := render.New(stdout, a.jsonOutput()).Calendar(groups); err != nil {
		return err
	}
	printResult(stdout, a.cli, ResultInfoOnly)
	return nil
}

// loadTasks fetches the owner's tasks, refreshing the snapshot cache on
// success and falling back to it when the store is unreachable.
func (a *app) loadTasks(ctx context.Context, sess *store.Session, opts tasks.ListOptions, stdout io.Writer) ([]tasks.Task, error) {
	list, err := a.repo.List(ctx, sess.User.ID, opts)
	if err == nil {
		// Only cache the unfiltered list; partial snapshots would lie on
		// the next fallback read.
		if a.cache != nil && opts.Status == "" && opts.Limit == 0 {
			if cacheErr := a.cache.Put(ctx, sess.User.ID, list); cacheErr != nil {
				utils.Debugf("cache write failed: %v", cacheErr)
			}
		}
		return list, nil
	}

	if a.cache == nil || !utils.IsStore(err) {
		return nil, err
	}

	cached, _, cacheErr := a.cache.Get(ctx, sess.User.ID, a.cfg.GetCacheTTLDuration())
	if cacheErr != nil || cached == nil {
		return nil, err
	}
	utils.Warnf("store unreachable, showing cached tasks: %v", err)
	if !a.jsonOutput() {
		_, _ = fmt.Fprintln(stdout, "(offline, showing cached tasks)")
	}
	return applyListOptions(cached, opts), nil
}

// cachedTasks serves a list straight from the snapshot cache, stale or not.
func (a *app) cachedTasks(ctx context.Context, ownerID string, opts tasks.ListOptions) ([]tasks.Task, error) {
	if a.cache == nil {
		return nil, fmt.Errorf("task cache is disabled")
	}
	list, _, err := a.cache.Get(ctx, ownerID, a.cfg.GetCacheTTLDuration())
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("no cached tasks yet, run 'taskdeck list' online first")
	}
	return applyListOptions(list, opts), nil
}

// applyListOptions filters a cached snapshot the way the store would.
func applyListOptions(list []tasks.Task, opts tasks.ListOptions) []tasks.Task {
	if opts.Status == "" && opts.Limit == 0 {
		return list
	}
	out := make([]tasks.Task, 0, len(list))
	for _, t := range list {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		out = append(out, t)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

func (a *app) invalidateCache(ctx context.Context, ownerID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx, ownerID); err != nil {
		utils.Debugf("cache invalidation failed: %v", err)
	}
}

// resolveTask finds a single task by id, id prefix or exact title. When the
// reference is ambiguous it falls back to an interactive selector, unless
// prompts are disabled.
func (a *app) resolveTask(ctx context.Context, ownerID, ref string, stdout io.Writer) (tasks.Task, error) {
	list, err := a.repo.List(ctx, ownerID, tasks.ListOptions{})
	if err != nil {
		return tasks.Task{}, err
	}

	for _, t := range list {
		if t.ID == ref {
			return t, nil
		}
	}

	var matches []tasks.Task
	if len(ref) >= 4 {
		for _, t := range list {
			if strings.HasPrefix(t.ID, ref) {
				matches = append(matches, t)
			}
		}
	}
	if len(matches) == 0 {
		for _, t := range list {
			if strings.EqualFold(t.Title, ref) {
				matches = append(matches, t)
			}
		}
	}
	if len(matches) == 0 {
		needle := strings.ToLower(ref)
		for _, t := range list {
			if strings.Contains(strings.ToLower(t.Title), needle) {
				matches = append(matches, t)
			}
		}
	}

	switch len(matches) {
	case 0:
		return tasks.Task{}, utils.ErrTaskNotFound(ref)
	case 1:
		return matches[0], nil
	}

	if a.cli.NoPrompt {
		return tasks.Task{}, fmt.Errorf("%q matches %d tasks, use the task id instead", ref, len(matches))
	}
	selector := &prompt.TaskSelector{
		Tasks:  matches,
		Prompt: fmt.Sprintf("%d tasks match %q", len(matches), ref),
		Reader: a.promptInput(),
		Writer: stdout,
	}
	selected, err := selector.Run()
	if err != nil {
		return tasks.Task{}, err
	}
	return *selected, nil
}
