package export

import (
	"context"

	"github.com/sadopc/teamworkflow/internal/store"
)

const unknown = "Unknown"

// Names resolves the ids on time entries and tasks to display names.
type Names struct {
	Tasks     map[int64]*store.Task
	Operators map[int64]*store.Operator
	Projects  map[int64]*store.Project
	Machines  map[int64]*store.Machine
}

// LoadNames reads every task, operator, project and machine, archived ones included.
func LoadNames(ctx context.Context, s *store.Store) (*Names, error) {
	n := &Names{
		Tasks:     make(map[int64]*store.Task),
		Operators: make(map[int64]*store.Operator),
		Projects:  make(map[int64]*store.Project),
		Machines:  make(map[int64]*store.Machine),
	}
	tasks, err := s.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		n.Tasks[tasks[i].ID] = &tasks[i]
	}
	operators, err := s.ListOperators(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range operators {
		n.Operators[operators[i].ID] = &operators[i]
	}
	projects, err := s.ListProjects(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		n.Projects[projects[i].ID] = &projects[i]
	}
	machines, err := s.ListMachines(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range machines {
		n.Machines[machines[i].ID] = &machines[i]
	}
	return n, nil
}

func (n *Names) task(id int64) string {
	if n != nil {
		if t, ok := n.Tasks[id]; ok {
			return t.Name
		}
	}
	return unknown
}

func (n *Names) operator(id int64) string {
	if n != nil {
		if o, ok := n.Operators[id]; ok {
			return o.FullName
		}
	}
	return unknown
}

func (n *Names) project(id int64) string {
	if n != nil {
		if p, ok := n.Projects[id]; ok {
			return p.Name
		}
	}
	return unknown
}

// projectOfTask is the project name of a task, or Unknown.
func (n *Names) projectOfTask(taskID int64) string {
	if n != nil {
		if t, ok := n.Tasks[taskID]; ok {
			return n.project(t.ProjectID)
		}
	}
	return unknown
}

func (n *Names) machine(id *int64) string {
	if id == nil {
		return ""
	}
	if n != nil {
		if m, ok := n.Machines[*id]; ok {
			return m.Name
		}
	}
	return unknown
}
