package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sadopc/teamworkflow/internal/roles"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

func testDB(t *testing.T) string {
	t.Helper()
	t.Setenv("TEAMWORKFLOW_LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "data", "test.db")
}

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := run(t, db, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

var createdID = regexp.MustCompile(`Created \w+ (\d+)`)

func created(t *testing.T, out string) string {
	t.Helper()
	m := createdID.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no id in %q", out)
	}
	return m[1]
}

func seed(t *testing.T, db string) (project, operator, machine string) {
	t.Helper()
	project = created(t, mustRun(t, db, "project", "add", "Gearbox", "--client", "Acme"))
	operator = created(t, mustRun(t, db, "operator", "add", "Ana Kovac"))
	machine = created(t, mustRun(t, db, "machine", "add", "Haas VF-2", "--capacity", "20"))
	return
}

func TestOpenCreatesDataDir(t *testing.T) {
	db := testDB(t)
	mustRun(t, db, "project", "list")
	info, err := os.Stat(filepath.Dir(db))
	if err != nil {
		t.Fatalf("data dir: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("data dir mode = %o, want 700", perm)
	}
}

func TestBadLogLevel(t *testing.T) {
	_, err := run(t, testDB(t), "--log-level", "loud", "project", "list")
	if err == nil || !strings.Contains(err.Error(), "--log-level") {
		t.Fatalf("err = %v, want log level error", err)
	}
}

func TestResourcesUseDefaultCapacity(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	out := mustRun(t, db, "operator", "list")
	if !strings.Contains(out, "Ana Kovac") || !strings.Contains(out, "40.0h") {
		t.Errorf("operator list missing default capacity:\n%s", out)
	}
	out = mustRun(t, db, "machine", "list")
	if !strings.Contains(out, "Haas VF-2") || !strings.Contains(out, "20.0h") {
		t.Errorf("machine list missing explicit capacity:\n%s", out)
	}

	mustRun(t, db, "operator", "availability", "1", string(store.OnVacation))
	out = mustRun(t, db, "sprint", "capacity")
	if !strings.Contains(out, "Operators 0.0h / 0.0h") {
		t.Errorf("vacationing operator still counted:\n%s", out)
	}
}

func TestSprintCommands(t *testing.T) {
	db := testDB(t)
	project, op, machine := seed(t, db)

	a := created(t, mustRun(t, db, "task", "add", "Mill housing", "--project", project,
		"--hours", "8", "--priority", "high", "--operator", op, "--machine", machine))
	b := created(t, mustRun(t, db, "task", "add", "Deburr", "--project", project, "--hours", "4"))
	big := created(t, mustRun(t, db, "task", "add", "Full rebuild", "--project", project, "--hours", "100"))

	if out := mustRun(t, db, "sprint", "validate", big); !strings.Contains(out, "exceed operator capacity by 60.0 hours") {
		t.Errorf("validate big:\n%s", out)
	}
	if _, err := run(t, db, "sprint", "add", big); err == nil {
		t.Error("adding an oversized task succeeded")
	}

	mustRun(t, db, "sprint", "add", a)
	mustRun(t, db, "sprint", "add", b)
	mustRun(t, db, "sprint", "order", b, a)

	out := mustRun(t, db, "sprint", "list")
	if strings.Index(out, "Deburr") > strings.Index(out, "Mill housing") {
		t.Errorf("order not applied:\n%s", out)
	}
	if _, err := run(t, db, "sprint", "order", a); err == nil {
		t.Error("partial order accepted")
	}

	out = mustRun(t, db, "sprint", "capacity")
	if !strings.Contains(out, "Operators 12.0h / 40.0h") || !strings.Contains(out, "Machines  8.0h / 20.0h") {
		t.Errorf("capacity:\n%s", out)
	}

	mustRun(t, db, "sprint", "remove", a)
	if _, err := run(t, db, "sprint", "remove", a); err == nil || !strings.Contains(err.Error(), "not in the sprint") {
		t.Errorf("second remove: %v", err)
	}

	out = mustRun(t, db, "sprint", "auto-assign", "--max", "5")
	if !strings.Contains(out, "Assigned 1 task(s)") {
		t.Errorf("auto-assign:\n%s", out)
	}
	out = mustRun(t, db, "sprint", "summary")
	if !strings.Contains(out, "Tasks: 2") {
		t.Errorf("summary:\n%s", out)
	}
}

func TestWorkLifecycle(t *testing.T) {
	db := testDB(t)
	project, op, _ := seed(t, db)
	task := created(t, mustRun(t, db, "task", "add", "Mill housing", "--project", project, "--hours", "1"))

	mustRun(t, db, "work", "start", task, op, "--notes", "first op")
	if _, err := run(t, db, "work", "start", task, op); !errors.Is(err, tracker.ErrInvalidState) {
		t.Errorf("second start err = %v, want ErrInvalidState", err)
	}
	if out := mustRun(t, db, "task", "list"); !strings.Contains(out, string(store.TaskInProgress)) {
		t.Errorf("task not in progress after start:\n%s", out)
	}

	mustRun(t, db, "work", "pause", task, op)
	if out := mustRun(t, db, "work", "list"); !strings.Contains(out, string(store.SessionPaused)) {
		t.Errorf("work list:\n%s", out)
	}
	mustRun(t, db, "work", "resume", task, op)

	out := mustRun(t, db, "work", "finish", task, op)
	if !strings.HasPrefix(out, "Recorded ") {
		t.Errorf("finish:\n%s", out)
	}
	if _, err := run(t, db, "work", "finish", task, op); !errors.Is(err, tracker.ErrInvalidState) {
		t.Errorf("finish without session err = %v", err)
	}

	out = mustRun(t, db, "work", "variance", task)
	if !strings.Contains(out, "estimated 60m") || !strings.Contains(out, string(tracker.UnderEstimate)) {
		t.Errorf("variance:\n%s", out)
	}
}

func TestExport(t *testing.T) {
	db := testDB(t)
	project, op, _ := seed(t, db)
	task := created(t, mustRun(t, db, "task", "add", "Mill housing", "--project", project, "--hours", "1"))
	mustRun(t, db, "work", "start", task, op)
	mustRun(t, db, "work", "finish", task, op)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "entries.json")
	mustRun(t, db, "export", "--format", "json", "-o", jsonPath)
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Count   int              `json:"count"`
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("json: %v\n%s", err, data)
	}
	if doc.Count != 1 || len(doc.Entries) != 1 || doc.Entries[0]["operator"] != "Ana Kovac" {
		t.Errorf("unexpected export: %s", data)
	}

	csvPath := filepath.Join(dir, "entries.csv")
	mustRun(t, db, "export", "-o", csvPath, "--from", "2000-01-01", "--to", "2000-01-02")
	data, err = os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n"); lines != 0 {
		t.Errorf("date filter kept %d rows:\n%s", lines, data)
	}

	sprintPath := filepath.Join(dir, "sprint.csv")
	mustRun(t, db, "export", "--format", "sprint", "-o", sprintPath)
	if _, err := os.Stat(sprintPath); err != nil {
		t.Errorf("sprint report: %v", err)
	}

	if _, err := run(t, db, "export", "--format", "xml", "-o", filepath.Join(dir, "x")); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := run(t, db, "export", "--from", "yesterday"); err == nil {
		t.Error("bad --from accepted")
	}
}

func TestRolesAndDemotion(t *testing.T) {
	db := testDB(t)
	a1 := created(t, mustRun(t, db, "user", "add", "ana", "--role", "admin"))
	a2 := created(t, mustRun(t, db, "user", "add", "ben", "--role", "admin"))
	a3 := created(t, mustRun(t, db, "user", "add", "cai", "--role", "admin"))
	guest := created(t, mustRun(t, db, "user", "add", "dee"))

	mustRun(t, db, "user", "role", guest, "operator", "--actor", a1)
	if _, err := run(t, db, "user", "role", a1, "guest", "--actor", guest); !errors.Is(err, roles.ErrForbidden) {
		t.Errorf("non-admin role change err = %v", err)
	}
	if _, err := run(t, db, "user", "role", a2, "guest", "--actor", a1); !errors.Is(err, roles.ErrApprovalRequired) {
		t.Errorf("direct demotion err = %v", err)
	}
	if _, err := run(t, db, "user", "role", guest, "admin"); err == nil {
		t.Error("role change without --actor accepted")
	}

	out := mustRun(t, db, "demotion", "request", a2, "--actor", a1, "--reason", "moved teams")
	id := regexp.MustCompile(`request (\S+) pending`).FindStringSubmatch(out)
	if id == nil {
		t.Fatalf("request:\n%s", out)
	}
	if out := mustRun(t, db, "demotion", "list"); !strings.Contains(out, "moved teams") {
		t.Errorf("pending list:\n%s", out)
	}
	if _, err := run(t, db, "demotion", "approve", id[1], "--actor", a1); !errors.Is(err, roles.ErrSelfApproval) {
		t.Errorf("requester approval err = %v", err)
	}
	mustRun(t, db, "demotion", "approve", id[1], "--actor", a3)

	out = mustRun(t, db, "user", "list")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "ben") && !strings.Contains(line, string(store.RoleGuest)) {
			t.Errorf("ben not demoted: %q", line)
		}
	}
}

func TestParseID(t *testing.T) {
	for _, s := range []string{"0", "-3", "abc", ""} {
		if _, err := parseID("ID", s); err == nil {
			t.Errorf("parseID(%q) accepted", s)
		}
	}
	if id, err := parseID("ID", "42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
}
