package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/teamworkflow/internal/export"
	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

var exportLabels = map[export.Format]string{
	export.FormatCSV:    "Time entries (CSV)",
	export.FormatJSON:   "Time entries (JSON)",
	export.FormatSprint: "Sprint report (CSV)",
}

// App is the root Bubble Tea model.
type App struct {
	store   *store.Store
	planner *sprint.Planner
	tracker *tracker.Tracker
	width   int
	height  int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int
	exportDir     string

	floor    floorModel
	projects projectsModel
	sprint   sprintModel
	reports  reportsModel
	settings settingsModel

	help        help.Model
	status      string
	statusError bool
}

func NewApp(s *store.Store, p *sprint.Planner, tr *tracker.Tracker) App {
	h := help.New()
	h.ShowAll = false

	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "."
	}

	return App{
		store:      s,
		planner:    p,
		tracker:    tr,
		activeView: viewFloor,
		exportDir:  dir,
		floor:      newFloorModel(s, tr),
		projects:   newProjectsModel(s, p, tr),
		sprint:     newSprintModel(p),
		reports:    newReportsModel(s, tr.Now),
		settings:   newSettingsModel(s),
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.floor.Init(),
		a.projects.refresh(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.floor.setSize(a.width, contentHeight)
		a.projects.setSize(a.width, contentHeight)
		a.sprint.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// A child view capturing input (e.g. form) gets keys first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			return a.switchTo(viewFloor)
		case key.Matches(msg, keys.Tab2):
			return a.switchTo(viewProjects)
		case key.Matches(msg, keys.Tab3):
			return a.switchTo(viewSprint)
		case key.Matches(msg, keys.Tab4):
			return a.switchTo(viewReports)
		case key.Matches(msg, keys.Tab5):
			return a.switchTo(viewSettings)
		case key.Matches(msg, keys.Tab):
			return a.switchTo((a.activeView + 1) % viewState(len(viewNames)))
		}

	case tickMsg:
		// Session clocks run whichever view is showing.
		var cmd tea.Cmd
		a.floor, cmd = a.floor.update(msg)
		return a, tea.Batch(tickCmd(), cmd)

	case statusMsg:
		a.status = msg.text
		a.statusError = msg.isError
		return a, nil

	case sessionStartedMsg:
		a.status = "Session started"
		a.statusError = false
		return a, nil

	case sessionFinishedMsg:
		a.status = "Session finished"
		if msg.entry != nil {
			a.status = fmt.Sprintf("Session finished: %s recorded", formatSeconds(msg.entry.Duration))
		}
		a.statusError = false
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.statusError = false
		a.exportPicking = false
		return a, nil

	// Data messages always reach their owner, even after a view switch.
	case floorDataMsg:
		return a.route(viewFloor, msg)
	case projectsDataMsg, tasksDataMsg:
		return a.route(viewProjects, msg)
	case sprintDataMsg:
		return a.route(viewSprint, msg)
	case reportsDataMsg:
		return a.route(viewReports, msg)
	case settingsDataMsg:
		return a.route(viewSettings, msg)
	}

	return a.updateActiveView(msg)
}

func (a App) switchTo(v viewState) (tea.Model, tea.Cmd) {
	a.activeView = v
	return a, a.refreshCurrentView()
}

func (a App) route(v viewState, msg tea.Msg) (tea.Model, tea.Cmd) {
	active := a.activeView
	a.activeView = v
	m, cmd := a.updateActiveView(msg)
	app := m.(App)
	app.activeView = active
	return app, cmd
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewFloor:
		a.floor, cmd = a.floor.update(msg)
	case viewProjects:
		a.projects, cmd = a.projects.update(msg)
	case viewSprint:
		a.sprint, cmd = a.sprint.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewFloor:
		return a.floor.stage != pickNone
	case viewProjects:
		return a.projects.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewFloor:
		return a.floor.loadData()
	case viewProjects:
		if a.projects.viewingTasks {
			return tea.Batch(a.projects.refresh(), a.projects.refreshTasks())
		}
		return a.projects.refresh()
	case viewSprint:
		return a.sprint.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewFloor:
		content = a.floor.view()
	case viewProjects:
		content = a.projects.view()
	case viewSprint:
		content = a.sprint.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	contentHeight := a.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("teamworkflow")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusError {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	// Floor indicator: running and paused session counts.
	floorInfo := ""
	if active, paused := a.floor.activeCount(); active+paused > 0 {
		floorInfo = successStyle.Render(fmt.Sprintf(" ● %d", active))
		if paused > 0 {
			floorInfo += warningStyle.Render(fmt.Sprintf(" ⏸ %d", paused))
		}
	}

	left := footerStyle.Render(helpView)
	right := floorInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export"), ""}
	for i, f := range export.Formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+exportLabels[f]))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  files go to "+a.exportDir))
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(export.Formats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(export.Formats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(f export.Format) tea.Cmd {
	s, p, dir, now := a.store, a.planner, a.exportDir, a.tracker.Now()
	return func() tea.Msg {
		path := export.DefaultPath(dir, f, now)
		var err error
		if f == export.FormatSprint {
			err = export.Sprint(ctx(), s, p, path)
		} else {
			err = export.Entries(ctx(), s, f, store.EntryFilter{}, path)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
