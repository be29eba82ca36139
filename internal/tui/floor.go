package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

type pickStage int

const (
	pickNone pickStage = iota
	pickTask
	pickOperator
)

// floorModel shows who is working on what right now.
type floorModel struct {
	store  *store.Store
	timer  timerModel
	width  int
	height int

	todayTotal   int64
	todaySummary []store.DailySummary
	tasks        []store.Task
	operators    []store.Operator
	taskNames    map[int64]string
	opNames      map[int64]string

	cursor int

	// Start picker: task first, then operator.
	stage        pickStage
	pickerCursor int
	pickedTask   int64
}

func newFloorModel(s *store.Store, tr *tracker.Tracker) floorModel {
	return floorModel{
		store:     s,
		timer:     newTimerModel(tr),
		taskNames: map[int64]string{},
		opNames:   map[int64]string{},
	}
}

func (f floorModel) Init() tea.Cmd {
	return f.loadData()
}

func (f *floorModel) setSize(w, h int) {
	f.width = w
	f.height = h
}

func (f floorModel) activeCount() (int, int) { return f.timer.counts() }

type floorDataMsg struct {
	todayTotal   int64
	todaySummary []store.DailySummary
	tasks        []store.Task
	operators    []store.Operator
	allTasks     []store.Task
	sessions     []store.WorkSession
	err          error
}

func (f floorModel) loadData() tea.Cmd {
	s, tr := f.store, f.timer.tracker
	return func() tea.Msg {
		c := ctx()
		var msg floorDataMsg
		msg.todayTotal, msg.err = s.GetTodayTotal(c)
		if msg.err != nil {
			return msg
		}

		now := tr.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if msg.todaySummary, msg.err = s.GetDailySummary(c, dayStart, dayStart.Add(24*time.Hour)); msg.err != nil {
			return msg
		}
		if msg.allTasks, msg.err = s.ListTasks(c, store.TaskFilter{}); msg.err != nil {
			return msg
		}
		for _, t := range msg.allTasks {
			if t.Status.Workable() {
				msg.tasks = append(msg.tasks, t)
			}
		}
		ops, err := s.ListOperators(c, false)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.operators = ops
		msg.sessions, msg.err = tr.ActiveSessions(c)
		return msg
	}
}

func (f floorModel) update(msg tea.Msg) (floorModel, tea.Cmd) {
	switch msg := msg.(type) {
	case floorDataMsg:
		if msg.err != nil {
			return f, errStatus(msg.err)
		}
		f.todayTotal = msg.todayTotal
		f.todaySummary = msg.todaySummary
		f.tasks = msg.tasks
		f.taskNames = make(map[int64]string, len(msg.allTasks))
		for _, t := range msg.allTasks {
			f.taskNames[t.ID] = t.Name
		}
		f.opNames = make(map[int64]string, len(msg.operators))
		f.operators = nil
		for _, o := range msg.operators {
			f.opNames[o.ID] = o.FullName
			if o.Available() {
				f.operators = append(f.operators, o)
			}
		}
		f.timer.sessions = msg.sessions
		f.timer.tick()
		f.clampCursor()
		return f, nil

	case tickMsg:
		f.timer.tick()
		return f, nil

	case tea.KeyMsg:
		if f.stage != pickNone {
			return f.updatePicker(msg)
		}

		switch {
		case key.Matches(msg, keys.Up):
			if f.cursor > 0 {
				f.cursor--
			}
		case key.Matches(msg, keys.Down):
			if f.cursor < len(f.timer.sessions)-1 {
				f.cursor++
			}
		case key.Matches(msg, keys.Start):
			if len(f.tasks) == 0 {
				return f, func() tea.Msg {
					return statusMsg{text: "No open tasks. Press 2 to go to Projects and create one.", isError: true}
				}
			}
			f.stage = pickTask
			f.pickerCursor = 0
			return f, nil
		case key.Matches(msg, keys.Pause):
			if err := f.timer.toggle(ctx(), f.cursor); err != nil {
				return f, errStatus(err)
			}
			return f, nil
		case key.Matches(msg, keys.Finish):
			return f.finishSelected()
		}
	}
	return f, nil
}

func (f floorModel) updatePicker(msg tea.KeyMsg) (floorModel, tea.Cmd) {
	n := len(f.tasks)
	if f.stage == pickOperator {
		n = len(f.operators)
	}

	switch {
	case key.Matches(msg, keys.Up):
		if f.pickerCursor > 0 {
			f.pickerCursor--
		}
	case key.Matches(msg, keys.Down):
		if f.pickerCursor < n-1 {
			f.pickerCursor++
		}
	case key.Matches(msg, keys.Enter):
		if n == 0 {
			f.stage = pickNone
			return f, func() tea.Msg {
				return statusMsg{text: "No operators at work.", isError: true}
			}
		}
		if f.stage == pickTask {
			f.pickedTask = f.tasks[f.pickerCursor].ID
			f.stage = pickOperator
			f.pickerCursor = 0
			return f, nil
		}
		op := f.operators[f.pickerCursor]
		f.stage = pickNone
		return f.startSession(f.pickedTask, op.ID)
	case key.Matches(msg, keys.Back):
		if f.stage == pickOperator {
			f.stage = pickTask
			f.pickerCursor = 0
			return f, nil
		}
		f.stage = pickNone
	}
	return f, nil
}

func (f floorModel) startSession(taskID, operatorID int64) (floorModel, tea.Cmd) {
	ws, err := f.timer.start(ctx(), taskID, operatorID, "")
	if err != nil {
		return f, errStatus(err)
	}
	for i, s := range f.timer.sessions {
		if s.ID == ws.ID {
			f.cursor = i
		}
	}
	return f, tea.Batch(
		f.loadData(),
		func() tea.Msg { return sessionStartedMsg{session: ws} },
	)
}

func (f floorModel) finishSelected() (floorModel, tea.Cmd) {
	if len(f.timer.sessions) == 0 {
		return f, nil
	}
	entry, err := f.timer.finish(ctx(), f.cursor, "")
	if err != nil {
		return f, errStatus(err)
	}
	f.clampCursor()
	return f, tea.Batch(
		f.loadData(),
		func() tea.Msg { return sessionFinishedMsg{entry: entry} },
	)
}

func (f *floorModel) clampCursor() {
	if f.cursor >= len(f.timer.sessions) {
		f.cursor = max(0, len(f.timer.sessions)-1)
	}
}

func (f floorModel) taskName(id int64) string {
	if n, ok := f.taskNames[id]; ok {
		return n
	}
	return fmt.Sprintf("task #%d", id)
}

func (f floorModel) operatorName(id int64) string {
	if n, ok := f.opNames[id]; ok {
		return n
	}
	return fmt.Sprintf("operator #%d", id)
}

func (f floorModel) view() string {
	if f.width < 20 {
		return "Terminal too small"
	}

	contentWidth := f.width - 4

	var bottom string
	switch f.stage {
	case pickTask:
		bottom = f.renderTaskPicker(contentWidth)
	case pickOperator:
		bottom = f.renderOperatorPicker(contentWidth)
	default:
		bottom = f.renderSummaryPanel(contentWidth)
	}

	return lipgloss.JoinVertical(lipgloss.Left, f.renderSessionsPanel(contentWidth), bottom)
}

func (f floorModel) renderSessionsPanel(w int) string {
	title := titleStyle.Render("On the floor")
	if len(f.timer.sessions) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("■  Nobody is working. Press s to start a session."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, ""}
	for i, ws := range f.timer.sessions {
		cursor := "  "
		style := normalItemStyle
		if i == f.cursor {
			cursor = "> "
			style = selectedItemStyle
		}

		clock := timerRunningStyle.Render("● " + formatDuration(f.timer.elapsed(i)))
		if ws.State == store.SessionPaused {
			clock = timerPausedStyle.Render("⏸ " + formatDuration(f.timer.elapsed(i)))
		}
		line := style.Render(fmt.Sprintf("%s%-22s %-26s",
			cursor, truncate(f.operatorName(ws.OperatorID), 22), truncate(f.taskName(ws.TaskID), 26)))
		rows = append(rows, line+" "+clock)
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  s: start  space: pause/resume  x: finish"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (f floorModel) renderSummaryPanel(w int) string {
	title := titleStyle.Render("Today")
	total := highlightStyle.Render(formatSeconds(f.todayTotal))
	header := fmt.Sprintf("%s  %s", title, total)

	if len(f.todaySummary) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			header,
			mutedStyle.Render("No time recorded today"),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{header}
	for _, s := range f.todaySummary {
		dot := lipgloss.NewStyle().Foreground(operatorColor(s.OperatorID)).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-22s %s  (%d entries)",
			dot, truncate(s.OperatorName, 22), formatSeconds(s.TotalSeconds), s.EntryCount))
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (f floorModel) renderTaskPicker(w int) string {
	rows := []string{titleStyle.Render("Select Task")}
	for i, t := range f.tasks {
		cursor := "  "
		style := normalItemStyle
		if i == f.pickerCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		prio := priorityStyle(t.Priority).Render(fmt.Sprintf("%-8s", t.Priority))
		rows = append(rows, style.Render(fmt.Sprintf("%s%-30s", cursor, truncate(t.Name, 30)))+" "+prio)
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: select  esc: cancel"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (f floorModel) renderOperatorPicker(w int) string {
	rows := []string{titleStyle.Render("Select Operator for " + f.taskName(f.pickedTask))}
	if len(f.operators) == 0 {
		rows = append(rows, mutedStyle.Render("No operators at work"))
	}
	for i, o := range f.operators {
		cursor := "  "
		style := normalItemStyle
		if i == f.pickerCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		dot := lipgloss.NewStyle().Foreground(operatorColor(o.ID)).Render("●")
		rows = append(rows, style.Render(cursor)+dot+" "+style.Render(o.FullName))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: start  esc: back"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
