package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
)

type sprintModel struct {
	planner *sprint.Planner
	width   int
	height  int

	capacity  *sprint.Capacity
	summary   *sprint.Summary
	operators []sprint.ResourceCapacity
	machines  []sprint.ResourceCapacity
	tasks     []store.Task
	cursor    int

	chart barchart.Model
}

func newSprintModel(p *sprint.Planner) sprintModel {
	return sprintModel{
		planner: p,
		chart:   barchart.New(60, 10),
	}
}

func (m *sprintModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type sprintDataMsg struct {
	capacity  *sprint.Capacity
	summary   *sprint.Summary
	operators []sprint.ResourceCapacity
	machines  []sprint.ResourceCapacity
	tasks     []store.Task
	err       error
}

func (m sprintModel) refresh() tea.Cmd {
	p := m.planner
	return func() tea.Msg {
		c := ctx()
		var msg sprintDataMsg
		if msg.capacity, msg.err = p.GetSprintCapacity(c); msg.err != nil {
			return msg
		}
		if msg.summary, msg.err = p.Summary(c); msg.err != nil {
			return msg
		}
		if msg.operators, msg.err = p.OperatorCapacities(c); msg.err != nil {
			return msg
		}
		if msg.machines, msg.err = p.MachineCapacities(c); msg.err != nil {
			return msg
		}
		msg.tasks, msg.err = p.SprintTasks(c)
		return msg
	}
}

func (m sprintModel) update(msg tea.Msg) (sprintModel, tea.Cmd) {
	switch msg := msg.(type) {
	case sprintDataMsg:
		if msg.err != nil {
			return m, errStatus(msg.err)
		}
		m.capacity = msg.capacity
		m.summary = msg.summary
		m.operators = msg.operators
		m.machines = msg.machines
		m.tasks = msg.tasks
		if m.cursor >= len(m.tasks) {
			m.cursor = max(0, len(m.tasks)-1)
		}
		m.buildChart()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.AutoAssign):
			n, err := m.planner.AutoAssignTasksToSprint(ctx(), 0)
			if err != nil {
				return m, errStatus(err)
			}
			return m, tea.Batch(m.refresh(), infoStatus("Auto-assigned %d task(s)", n))
		case key.Matches(msg, keys.Sprint), key.Matches(msg, keys.Delete):
			if len(m.tasks) == 0 {
				return m, nil
			}
			task := m.tasks[m.cursor]
			ok, reason, err := m.planner.RemoveTaskFromSprint(ctx(), task.ID)
			if err != nil {
				return m, errStatus(err)
			}
			if !ok {
				return m, func() tea.Msg { return statusMsg{text: reason, isError: true} }
			}
			return m, tea.Batch(m.refresh(), infoStatus("%s returned to the backlog", task.Name))
		case key.Matches(msg, keys.MoveUp):
			return m.move(-1)
		case key.Matches(msg, keys.MoveDown):
			return m.move(1)
		}
	}
	return m, nil
}

// move swaps the selected task with its neighbour and persists the new order.
func (m sprintModel) move(delta int) (sprintModel, tea.Cmd) {
	j := m.cursor + delta
	if len(m.tasks) == 0 || j < 0 || j >= len(m.tasks) {
		return m, nil
	}
	ids := make([]int64, len(m.tasks))
	for i, t := range m.tasks {
		ids[i] = t.ID
	}
	ids[m.cursor], ids[j] = ids[j], ids[m.cursor]
	if err := m.planner.ReorderSprint(ctx(), ids); err != nil {
		return m, errStatus(err)
	}
	m.cursor = j
	return m, m.refresh()
}

func (m *sprintModel) buildChart() {
	chartWidth := m.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 10
	if m.height > 36 {
		chartHeight = 14
	}

	m.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	add := func(r sprint.ResourceCapacity) {
		assigned := r.AssignedHours
		free := r.AvailableHours - r.AssignedHours
		if free < 0 {
			free = 0
		}
		bars = append(bars, barchart.BarData{
			Label: truncate(r.Name, 10),
			Values: []barchart.BarValue{
				{Name: "Assigned", Value: assigned, Style: capacityStyle(r.Status)},
				{Name: "Free", Value: free, Style: lipgloss.NewStyle().Foreground(colorSubtle)},
			},
		})
	}
	for _, r := range m.operators {
		add(r)
	}
	for _, r := range m.machines {
		add(r)
	}
	if len(bars) == 0 {
		return
	}

	m.chart.PushAll(bars)
	m.chart.Draw()
}

func (m sprintModel) view() string {
	w := m.width - 4
	if m.capacity == nil || m.summary == nil {
		return panelStyle.Width(w).Render(mutedStyle.Render("Loading sprint..."))
	}

	window := mutedStyle.Render(fmt.Sprintf("%s – %s",
		m.summary.Start.Format("Jan 02"), m.summary.End.AddDate(0, 0, -1).Format("Jan 02, 2006")))
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Sprint"), "  ", window, "  ",
		capacityStyle(m.capacity.Status).Render(string(m.capacity.Status)),
	)

	totals := strings.Join([]string{
		m.capacityLine("Operators", m.capacity.RequiredOperatorHours, m.capacity.TotalOperatorHours,
			m.capacity.OperatorUtilization, m.capacity.OperatorStatus),
		m.capacityLine("Machines", m.capacity.RequiredMachineHours, m.capacity.TotalMachineHours,
			m.capacity.MachineUtilization, m.capacity.MachineStatus),
		mutedStyle.Render(fmt.Sprintf("  %d tasks: %d open, %d in progress, %d finished this sprint; %s remaining",
			m.summary.TaskCount, m.summary.Open, m.summary.InProgress, m.summary.FinishedInWindow,
			formatHours(m.summary.RemainingHours))),
	}, "\n")

	chart := mutedStyle.Render("  No active operators or machines")
	if len(m.operators)+len(m.machines) > 0 {
		chart = m.chart.View()
	}

	nav := mutedStyle.Render("  A: auto-assign  a/d: remove  K/J: reorder")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", totals, "", chart, "", m.renderTasks(w), "", nav,
		),
	)
}

func (m sprintModel) capacityLine(label string, required, total, util float64, status sprint.Status) string {
	return fmt.Sprintf("  %-10s %7s of %-7s %5.1f%%  %s",
		label, formatHours(required), formatHours(total), util,
		capacityStyle(status).Render(string(status)))
}

func (m sprintModel) renderTasks(w int) string {
	if len(m.tasks) == 0 {
		return mutedStyle.Render("  The sprint is empty. Press A to fill it from the backlog.")
	}

	rows := []string{mutedStyle.Render(fmt.Sprintf("  %-4s %-28s %-9s %-12s %8s  %s", "#", "Task", "Priority", "Status", "Estimate", "Deadline"))}
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 78))))
	for i, t := range m.tasks {
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		deadline := ""
		if t.Deadline != nil {
			deadline = t.Deadline.Format(time.DateOnly)
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-4d %-28s ", cursor, t.SprintOrder, truncate(t.Name, 28)))+
			priorityStyle(t.Priority).Render(fmt.Sprintf("%-9s", t.Priority))+
			style.Render(fmt.Sprintf(" %-12s %8s  %s", t.Status, formatHours(t.EstimatedHours), deadline)))
	}
	return strings.Join(rows, "\n")
}
