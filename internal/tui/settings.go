package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/teamworkflow/internal/store"
)

// planningSettings are the keys editable from the settings form, in display order.
var planningSettings = []struct {
	key   string
	title string
}{
	{store.SettingSprintStart, "Sprint start (YYYY-MM-DD, blank = this Monday)"},
	{store.SettingSprintLengthDays, "Sprint length (days)"},
	{store.SettingAutoAssignLimit, "Auto-assign limit (tasks)"},
	{store.SettingHighUtilizationPct, "High utilization from (%)"},
	{store.SettingAtCapacityPct, "At capacity from (%)"},
	{store.SettingDefaultCapacityHours, "Default capacity for new resources (h)"},
}

type settingsModel struct {
	store  *store.Store
	width  int
	height int

	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values by key; pointers survive value copies.
	values map[string]*string
}

func newSettingsModel(s *store.Store) settingsModel {
	values := make(map[string]*string, len(planningSettings))
	for _, ps := range planningSettings {
		v := ""
		values[ps.key] = &v
	}
	return settingsModel{store: s, values: values}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
	err      error
}

func (s settingsModel) refresh() tea.Cmd {
	st := s.store
	return func() tea.Msg {
		settings, err := st.GetAllSettings(ctx())
		return settingsDataMsg{settings: settings, err: err}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		if msg.err != nil {
			return s, errStatus(msg.err)
		}
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.New):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	fields := make([]huh.Field, 0, len(planningSettings))
	for _, ps := range planningSettings {
		*s.values[ps.key] = s.getVal(ps.key)
		k := ps.key
		fields = append(fields, huh.NewInput().
			Title(ps.title).
			Value(s.values[k]).
			Validate(func(v string) error {
				return store.ValidateSetting(k, strings.TrimSpace(v))
			}))
	}

	s.form = huh.NewForm(
		huh.NewGroup(fields...).Title("Planning"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, errStatus(err)
		}
		return s, tea.Batch(s.refresh(), infoStatus("Settings saved"))
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	values := make(map[string]string, len(planningSettings))
	for _, ps := range planningSettings {
		values[ps.key] = strings.TrimSpace(*s.values[ps.key])
	}
	return s.store.SetSettings(ctx(), values)
}

func (s settingsModel) getVal(k string) string {
	for _, setting := range s.settings {
		if setting.Key == k {
			return setting.Value
		}
	}
	v, err := s.store.GetSetting(ctx(), k)
	if err != nil {
		return ""
	}
	return v
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{title, ""}
	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(26).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case store.SettingSprintStart:
		if v == "" {
			return "this week's Monday"
		}
	case store.SettingSprintLengthDays:
		return v + " days"
	case store.SettingHighUtilizationPct, store.SettingAtCapacityPct:
		return v + "%"
	case store.SettingDefaultCapacityHours:
		return v + " hours"
	}
	return v
}
