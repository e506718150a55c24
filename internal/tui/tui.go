// Package tui provides the terminal user interface: a dashboard with
// completion statistics, the task list, and a calendar grouping, driven
// by the task repository. Mutations follow the same rule as the CLI:
// local state changes only after the store confirms the write.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskdeck/internal/render"
	"taskdeck/internal/tasks"
)

// Screen identifies the active view.
type Screen int

const (
	ScreenDashboard Screen = iota
	ScreenList
	ScreenCalendar
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state
type Model struct {
	repo    *tasks.Repository
	ownerID string
	email   string
	ctx     context.Context

	// Data
	loading     bool
	loadErr     error
	tasks       []tasks.Task
	filteredIdx []int // indices into tasks slice for filtered view

	// Selection
	cursor int
	screen Screen

	// Mode and input
	mode         Mode
	textInput    textinput.Model
	filter       string
	editingID    string
	notice       string
	sessionEnded bool

	// UI dimensions
	width  int
	height int

	// Styles
	paneStyle      lipgloss.Style
	headerStyle    lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	overdueStyle   lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

// Message types
type tasksLoadedMsg struct {
	tasks []tasks.Task
}

type taskToggledMsg struct {
	task tasks.Task
}

type taskSavedMsg struct {
	task tasks.Task
}

type taskDeletedMsg struct {
	taskID string
}

type errMsg struct {
	err error
}

// SessionEndedMsg tells the program the session was terminated outside the
// TUI, for example by a failed token refresh. The program quits and the
// caller reports the re-login hint.
type SessionEndedMsg struct{}

// New creates a new TUI model for the given owner.
func New(repo *tasks.Repository, ownerID, email string) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		repo:      repo,
		ownerID:   ownerID,
		email:     email,
		ctx:       context.Background(),
		loading:   true,
		textInput: ti,
		screen:    ScreenDashboard,
		mode:      ModeNormal,
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		overdueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return m.loadTasks()
}

func (m *Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		list, err := m.repo.List(m.ctx, m.ownerID, tasks.ListOptions{})
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{list}
	}
}

func (m *Model) toggleTask(task tasks.Task) tea.Cmd {
	return func() tea.Msg {
		updated, err := m.repo.Toggle(m.ctx, task)
		if err != nil {
			return errMsg{err}
		}
		return taskToggledMsg{updated}
	}
}

func (m *Model) deleteTask(task tasks.Task) tea.Cmd {
	return func() tea.Msg {
		if err := m.repo.Delete(m.ctx, task); err != nil {
			return errMsg{err}
		}
		return taskDeletedMsg{task.ID}
	}
}

func (m *Model) saveTask(title, existingID string) tea.Cmd {
	draft := tasks.Draft{Title: title}
	// The dialog edits only the title; a rename must keep the fields it
	// does not show.
	if existingID != "" {
		for _, t := range m.tasks {
			if t.ID == existingID {
				draft.Description = t.Description
				draft.DueAt = t.DueAt
				break
			}
		}
	}
	return func() tea.Msg {
		task, err := m.repo.Upsert(m.ctx, m.ownerID, draft, existingID)
		if err != nil {
			return errMsg{err}
		}
		return taskSavedMsg{task}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksLoadedMsg:
		m.loading = false
		m.loadErr = nil
		m.tasks = msg.tasks
		m.applyFilter()
		return m, nil

	case taskToggledMsg:
		// Reconcile only now that the store confirmed the write
		rebuilt := make([]tasks.Task, 0, len(m.tasks))
		for _, t := range m.tasks {
			if t.ID == msg.task.ID {
				rebuilt = append(rebuilt, msg.task)
			} else {
				rebuilt = append(rebuilt, t)
			}
		}
		m.tasks = rebuilt
		m.applyFilter()
		return m, nil

	case taskSavedMsg:
		m.notice = ""
		// A save lands on the next full load rather than an in-place patch
		return m, m.loadTasks()

	case taskDeletedMsg:
		rebuilt := make([]tasks.Task, 0, len(m.tasks))
		for _, t := range m.tasks {
			if t.ID != msg.taskID {
				rebuilt = append(rebuilt, t)
			}
		}
		m.tasks = rebuilt
		m.applyFilter()
		if m.cursor >= len(m.filteredIdx) && m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case errMsg:
		if m.loading {
			m.loading = false
			m.loadErr = msg.err
		}
		m.notice = msg.err.Error()
		return m, nil

	case SessionEndedMsg:
		m.sessionEnded = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd, ModeEdit:
			return m.handleInputMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	if m.mode == ModeAdd || m.mode == ModeEdit || m.mode == ModeFilter {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.screen = (m.screen + 1) % 3
		return m, nil

	case "1":
		m.screen = ScreenDashboard
		return m, nil
	case "2":
		m.screen = ScreenList
		return m, nil
	case "3":
		m.screen = ScreenCalendar
		return m, nil

	case "r":
		if m.loadErr != nil {
			m.loading = true
			m.loadErr = nil
			return m, m.loadTasks()
		}
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.filteredIdx)-1 {
			m.cursor++
		}
		return m, nil

	case "a":
		m.mode = ModeAdd
		m.editingID = ""
		m.textInput.Reset()
		m.textInput.Placeholder = "New task title..."
		m.textInput.Focus()
		return m, textinput.Blink

	case "e":
		if task, ok := m.selectedTask(); ok {
			m.mode = ModeEdit
			m.editingID = task.ID
			m.textInput.Reset()
			m.textInput.SetValue(task.Title)
			m.textInput.Focus()
			return m, textinput.Blink
		}
		return m, nil

	case "c", " ":
		if task, ok := m.selectedTask(); ok {
			return m, m.toggleTask(task)
		}
		return m, nil

	case "d":
		if _, ok := m.selectedTask(); ok {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case "/":
		m.mode = ModeFilter
		m.textInput.Reset()
		m.textInput.Placeholder = "Search..."
		m.textInput.Focus()
		return m, textinput.Blink

	case "?":
		m.mode = ModeHelp
		return m, nil
	}
	return m, nil
}

func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		m.mode = ModeNormal
		if value == "" {
			return m, nil
		}
		return m, m.saveTask(value, m.editingID)

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.filter = m.textInput.Value()
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.filter = ""
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}
	if msg.String() == "q" {
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.selectedTask(); ok {
			return m, m.deleteTask(task)
		}
		return m, nil

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}

	if msg.Type == tea.KeyEsc {
		m.mode = ModeNormal
	}
	return m, nil
}

// SessionEnded reports whether the program quit because the session was
// terminated rather than by user request.
func (m *Model) SessionEnded() bool {
	return m.sessionEnded
}

func (m *Model) selectedTask() (tasks.Task, bool) {
	if len(m.filteredIdx) == 0 || m.cursor >= len(m.filteredIdx) {
		return tasks.Task{}, false
	}
	return m.tasks[m.filteredIdx[m.cursor]], true
}

func (m *Model) applyFilter() {
	m.filteredIdx = nil
	for i, task := range m.tasks {
		if m.filter == "" || strings.Contains(strings.ToLower(task.Title), strings.ToLower(m.filter)) {
			m.filteredIdx = append(m.filteredIdx, i)
		}
	}
	if m.cursor >= len(m.filteredIdx) {
		m.cursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("Add New Task")
	case ModeEdit:
		return m.renderInputDialog("Edit Task")
	case ModeFilter:
		return m.renderInputDialog("Search Tasks")
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	}

	var content string
	switch {
	case m.loading:
		content = "Loading tasks..."
	case m.loadErr != nil:
		content = m.errorStyle.Render("Failed to load tasks: "+m.loadErr.Error()) +
			"\n\n" + m.helpStyle.Render("r: retry  q: quit")
	case m.screen == ScreenDashboard:
		content = m.renderDashboard()
	case m.screen == ScreenCalendar:
		content = m.renderCalendar()
	default:
		content = m.renderList()
	}

	pane := m.paneStyle.Width(m.width - 2).Height(m.height - 4).Render(content)
	return pane + "\n" + m.renderStatusBar()
}

func (m *Model) renderDashboard() string {
	stats := tasks.ComputeStats(m.tasks, time.Now())

	var b strings.Builder
	b.WriteString(m.headerStyle.Render("Dashboard"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  Total      %d\n", stats.Total))
	b.WriteString(fmt.Sprintf("  Completed  %d\n", stats.Completed))
	b.WriteString(fmt.Sprintf("  Pending    %d\n", stats.Pending))
	b.WriteString(fmt.Sprintf("  Due soon   %d\n", stats.DueSoon))
	b.WriteString("\n")

	percent := stats.CompletionPercentage()
	barWidth := 30
	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	b.WriteString(fmt.Sprintf("  %s %d%%\n", bar, percent))

	return b.String()
}

func (m *Model) renderList() string {
	var b strings.Builder
	b.WriteString(m.headerStyle.Render("Tasks"))
	b.WriteString("\n\n")

	if len(m.filteredIdx) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	now := time.Now()
	for fi, taskIdx := range m.filteredIdx {
		task := m.tasks[taskIdx]

		cursor := " "
		if fi == m.cursor {
			cursor = ">"
		}

		status := "[ ]"
		if task.Completed() {
			status = "[✓]"
		}

		title := task.Title
		if task.Completed() {
			title = m.completedStyle.Render(title)
		} else if fi == m.cursor {
			title = m.selectedStyle.Render(title)
		}

		line := cursor + " " + status + " " + title
		if task.DueAt != nil {
			due := render.FormatRelativeDue(*task.DueAt, now)
			if due == "overdue" && !task.Completed() {
				due = m.overdueStyle.Render(due)
			}
			line += m.helpStyle.Render("  (" + due + ")")
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func (m *Model) renderCalendar() string {
	var b strings.Builder
	b.WriteString(m.headerStyle.Render("Calendar"))
	b.WriteString("\n\n")

	groups := tasks.GroupByDueDate(m.tasks)
	if len(groups) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	for _, group := range groups {
		heading := group.Key
		if group.HasDate {
			heading = group.Date.Format("Mon, 02 Jan 2006")
		}
		b.WriteString(m.headerStyle.Render(heading) + "\n")
		for _, task := range group.Tasks {
			status := "[ ]"
			if task.Completed() {
				status = "[✓]"
			}
			b.WriteString("  " + status + " " + task.Title + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := m.email
	if m.notice != "" {
		left = m.errorStyle.Render(m.notice)
	}

	right := "1:dashboard 2:list 3:calendar  q:quit  ?:help"
	if m.filter != "" {
		right = "Filter: " + m.filter + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderInputDialog(title string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: confirm  Esc: cancel"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	// Kept compact so the dialog fits a 24-row terminal with its border.
	help := `Key Bindings

  1/2/3  Dashboard / task list / calendar
  Tab    Cycle screens
  j/↓    Move down        k/↑  Move up
  a      Add new task     e    Edit selected task
  c      Toggle complete  d    Delete (with confirm)
  /      Search/filter    r    Retry after load error
  ?      Show this help   q    Quit

Press Esc to close`

	return m.centerDialog(m.dialogStyle.Render(help))
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "Delete selected task?"
	if task, ok := m.selectedTask(); ok {
		title = "Delete \"" + task.Title + "\"?"
	}
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > dialogWidth {
			dialogWidth = w
		}
	}

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
