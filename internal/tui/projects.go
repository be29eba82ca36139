package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

var priorities = []store.Priority{store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityCritical}

type projectsModel struct {
	store   *store.Store
	planner *sprint.Planner
	tracker *tracker.Tracker
	width   int
	height  int

	projects     []store.Project
	tasks        []store.Task
	machines     []store.Machine
	cursor       int
	taskCursor   int
	viewingTasks bool // true = viewing tasks of selected project
	variance     *tracker.Variance

	formActive bool
	form       *huh.Form
	formType   string // "project", "task"

	// Form field pointers (survive value copies)
	formName     *string
	formClient   *string
	formDeadline *string
	formHours    *string
	formPriority *store.Priority
	formMachine  *int64
}

func newProjectsModel(s *store.Store, p *sprint.Planner, tr *tracker.Tracker) projectsModel {
	name, client, deadline, hours := "", "", "", ""
	prio := store.PriorityMedium
	var machine int64
	return projectsModel{
		store:        s,
		planner:      p,
		tracker:      tr,
		formName:     &name,
		formClient:   &client,
		formDeadline: &deadline,
		formHours:    &hours,
		formPriority: &prio,
		formMachine:  &machine,
	}
}

func (p *projectsModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

type projectsDataMsg struct {
	projects []store.Project
	machines []store.Machine
	err      error
}

type tasksDataMsg struct {
	tasks []store.Task
	err   error
}

func (p projectsModel) refresh() tea.Cmd {
	s := p.store
	return func() tea.Msg {
		projects, err := s.ListProjects(ctx(), false)
		if err != nil {
			return projectsDataMsg{err: err}
		}
		machines, err := s.ListMachines(ctx(), true)
		return projectsDataMsg{projects: projects, machines: machines, err: err}
	}
}

func (p projectsModel) refreshTasks() tea.Cmd {
	if p.cursor >= len(p.projects) {
		return nil
	}
	s, pid := p.store, p.projects[p.cursor].ID
	return func() tea.Msg {
		tasks, err := s.ListTasks(ctx(), store.TaskFilter{ProjectID: &pid})
		return tasksDataMsg{tasks: tasks, err: err}
	}
}

func (p projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}

	switch msg := msg.(type) {
	case projectsDataMsg:
		if msg.err != nil {
			return p, errStatus(msg.err)
		}
		p.projects = msg.projects
		p.machines = msg.machines
		if p.cursor >= len(p.projects) {
			p.cursor = max(0, len(p.projects)-1)
		}
		return p, nil

	case tasksDataMsg:
		if msg.err != nil {
			return p, errStatus(msg.err)
		}
		p.tasks = msg.tasks
		if p.taskCursor >= len(p.tasks) {
			p.taskCursor = max(0, len(p.tasks)-1)
		}
		return p, nil

	case tea.KeyMsg:
		if p.viewingTasks {
			return p.updateTaskView(msg)
		}
		return p.updateProjectList(msg)
	}
	return p, nil
}

func (p projectsModel) updateProjectList(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.projects)-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(p.projects) > 0 {
			p.viewingTasks = true
			p.taskCursor = 0
			return p, p.refreshTasks()
		}
	case key.Matches(msg, keys.New):
		return p.showNewProjectForm()
	case key.Matches(msg, keys.Delete):
		if len(p.projects) > 0 {
			proj := p.projects[p.cursor]
			if err := p.store.ArchiveProject(ctx(), proj.ID); err != nil {
				return p, errStatus(err)
			}
			return p, tea.Batch(p.refresh(), infoStatus("Archived %s", proj.Name))
		}
	}
	return p, nil
}

func (p projectsModel) updateTaskView(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		p.viewingTasks = false
		return p, nil
	case key.Matches(msg, keys.Up):
		if p.taskCursor > 0 {
			p.taskCursor--
		}
	case key.Matches(msg, keys.Down):
		if p.taskCursor < len(p.tasks)-1 {
			p.taskCursor++
		}
	case key.Matches(msg, keys.New):
		return p.showNewTaskForm()
	}

	if len(p.tasks) == 0 {
		return p, nil
	}
	task := p.tasks[p.taskCursor]

	switch {
	case key.Matches(msg, keys.Delete):
		if err := p.store.UpdateTaskStatus(ctx(), task.ID, store.TaskCanceled); err != nil {
			return p, errStatus(err)
		}
		return p, tea.Batch(p.refreshTasks(), infoStatus("Canceled %s", task.Name))
	case key.Matches(msg, keys.Sprint):
		return p.toggleSprint(task)
	case key.Matches(msg, keys.Enter):
		v, err := p.tracker.Variance(ctx(), task.ID)
		if err != nil {
			return p, errStatus(err)
		}
		p.variance = v
		return p, infoStatus("%s: estimated %dm, actual %dm, %+dm (%s)",
			task.Name, v.EstimatedMinutes, v.ActualMinutes, v.VarianceMinutes, v.Status)
	}
	return p, nil
}

func (p projectsModel) toggleSprint(task store.Task) (projectsModel, tea.Cmd) {
	var (
		ok     bool
		reason string
		err    error
	)
	if task.InSprint {
		ok, reason, err = p.planner.RemoveTaskFromSprint(ctx(), task.ID)
	} else {
		ok, reason, err = p.planner.AddTaskToSprint(ctx(), task.ID)
	}
	if err != nil {
		return p, errStatus(err)
	}
	if !ok {
		return p, func() tea.Msg { return statusMsg{text: reason, isError: true} }
	}
	if task.InSprint {
		return p, tea.Batch(p.refreshTasks(), infoStatus("%s returned to the backlog", task.Name))
	}
	return p, tea.Batch(p.refreshTasks(), infoStatus("%s added to the sprint", task.Name))
}

func (p projectsModel) showNewProjectForm() (projectsModel, tea.Cmd) {
	*p.formName = ""
	*p.formClient = ""
	*p.formDeadline = ""
	p.formType = "project"

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Project Name").Value(p.formName).Validate(required("name")),
			huh.NewInput().Title("Client").Value(p.formClient),
			huh.NewInput().Title("Deadline (YYYY-MM-DD, optional)").Value(p.formDeadline).Validate(validDate),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) showNewTaskForm() (projectsModel, tea.Cmd) {
	*p.formName = ""
	*p.formHours = "1"
	*p.formDeadline = ""
	*p.formPriority = store.PriorityMedium
	*p.formMachine = 0
	p.formType = "task"

	prioOptions := make([]huh.Option[store.Priority], len(priorities))
	for i, pr := range priorities {
		prioOptions[i] = huh.NewOption(string(pr), pr)
	}
	machineOptions := []huh.Option[int64]{huh.NewOption("No machine", int64(0))}
	for _, m := range p.machines {
		machineOptions = append(machineOptions, huh.NewOption(m.Name, m.ID))
	}

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task Name").Value(p.formName).Validate(required("name")),
			huh.NewSelect[store.Priority]().Title("Priority").Options(prioOptions...).Value(p.formPriority),
			huh.NewSelect[int64]().Title("Machine").Options(machineOptions...).Value(p.formMachine),
			huh.NewInput().Title("Estimated hours").Value(p.formHours).Validate(validHours),
			huh.NewInput().Title("Deadline (YYYY-MM-DD, optional)").Value(p.formDeadline).Validate(validDate),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) updateForm(msg tea.Msg) (projectsModel, tea.Cmd) {
	// Check for escape to cancel form
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			p.formActive = false
			p.form = nil
			return p, nil
		}
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	if p.form.State == huh.StateCompleted {
		p.formActive = false
		switch p.formType {
		case "project":
			if err := p.createProject(); err != nil {
				return p, errStatus(err)
			}
			return p, p.refresh()
		case "task":
			if err := p.createTask(); err != nil {
				return p, errStatus(err)
			}
			return p, p.refreshTasks()
		}
	}

	return p, cmd
}

func (p projectsModel) createProject() error {
	proj := &store.Project{
		Name:     strings.TrimSpace(*p.formName),
		Client:   strings.TrimSpace(*p.formClient),
		Deadline: parseDate(*p.formDeadline),
	}
	return p.store.CreateProject(ctx(), proj)
}

func (p projectsModel) createTask() error {
	if p.cursor >= len(p.projects) {
		return nil
	}
	hours, _ := strconv.ParseFloat(strings.TrimSpace(*p.formHours), 64)
	t := &store.Task{
		ProjectID:      p.projects[p.cursor].ID,
		Name:           strings.TrimSpace(*p.formName),
		Priority:       *p.formPriority,
		EstimatedHours: hours,
		Deadline:       parseDate(*p.formDeadline),
	}
	if *p.formMachine != 0 {
		id := *p.formMachine
		t.MachineID = &id
	}
	return p.store.CreateTask(ctx(), t)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return fmt.Errorf("use YYYY-MM-DD")
	}
	return nil
}

func validHours(s string) error {
	h, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || h < 0 {
		return fmt.Errorf("enter a non-negative number of hours")
	}
	return nil
}

func parseDate(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

func (p projectsModel) view() string {
	if p.formActive && p.form != nil {
		title := titleStyle.Render("New Project")
		if p.formType == "task" {
			title = titleStyle.Render("New Task")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", p.form.View())
		return panelStyle.Width(p.width - 4).Render(content)
	}

	if p.viewingTasks {
		return p.renderTaskView()
	}
	return p.renderProjectList()
}

func (p projectsModel) renderProjectList() string {
	w := p.width - 4
	title := titleStyle.Render("Projects")

	if len(p.projects) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No projects yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, ""}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-26s %-18s %-12s", "Name", "Client", "Deadline")))

	for i, proj := range p.projects {
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		deadline := "-"
		if proj.Deadline != nil {
			deadline = proj.Deadline.Format(time.DateOnly)
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-26s %-18s %-12s",
			cursor, truncate(proj.Name, 26), truncate(proj.Client, 18), deadline)))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  d: archive  enter: tasks"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p projectsModel) renderTaskView() string {
	w := p.width - 4
	proj := p.projects[p.cursor]
	title := titleStyle.Render(proj.Name + " / Tasks")

	if len(p.tasks) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tasks. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, ""}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-28s %-9s %-12s %12s  %s", "Task", "Priority", "Status", "Est/Actual", "Sprint")))

	for i, task := range p.tasks {
		cursor := "  "
		style := normalItemStyle
		if i == p.taskCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		sprintMark := ""
		if task.InSprint {
			sprintMark = successStyle.Render(fmt.Sprintf("#%d", task.SprintOrder))
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-28s ", cursor, truncate(task.Name, 28)))+
			priorityStyle(task.Priority).Render(fmt.Sprintf("%-9s", task.Priority))+
			style.Render(fmt.Sprintf(" %-12s %5s/%-6s  ", task.Status, formatHours(task.EstimatedHours), formatHours(task.ActualHours)))+
			sprintMark)
	}

	rows = append(rows, "")
	if v := p.variance; v != nil && v.TaskID == p.tasks[p.taskCursor].ID {
		rows = append(rows, "  "+varianceStyle(v.Status).Render(fmt.Sprintf("%+dm (%.1f%%) %s", v.VarianceMinutes, v.VariancePercent, v.Status)))
	}
	rows = append(rows, mutedStyle.Render("  n: new task  a: add/remove sprint  d: cancel  enter: variance  esc: back"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
