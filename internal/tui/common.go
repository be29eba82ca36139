package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/teamworkflow/internal/store"
)

// viewState represents the currently active view.
type viewState int

const (
	viewFloor viewState = iota
	viewProjects
	viewSprint
	viewReports
	viewSettings
)

var viewNames = []string{"Floor", "Projects", "Sprint", "Reports", "Settings"}

// --- Messages ---

type sessionStartedMsg struct {
	session *store.WorkSession
}

type sessionFinishedMsg struct {
	entry *store.TimeEntry
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

// ctx is the context for store calls made from commands and key handlers.
// Bubble Tea models have no request scope of their own.
func ctx() context.Context {
	return context.Background()
}

func errStatus(err error) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
	}
}

func infoStatus(format string, args ...any) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf(format, args...)}
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

func formatHours(h float64) string {
	return fmt.Sprintf("%.1fh", h)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
