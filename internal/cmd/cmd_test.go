package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openforge/commons/internal/version"
	"github.com/openforge/commons/pkg/database"
	"github.com/openforge/commons/pkg/models"
)

// writeConfig writes a sqlite backed config with the outbox enabled and
// returns its path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "commons.db")
	cfgPath := filepath.Join(dir, "commons.hcl")
	src := fmt.Sprintf(`
log_level = "error"

database {
  driver = "sqlite"
  path   = %q
}

pipeline {
  outbox = true
}
`, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(src), 0o600))
	return cfgPath, dbPath
}

func run(t *testing.T, args ...string) (int, *cli.MockUi) {
	t.Helper()
	ui := cli.NewMockUi()
	initCommands(hclog.NewNullLogger(), ui)

	factory, ok := Commands[args[0]]
	require.True(t, ok, "command %q", args[0])
	c, err := factory()
	require.NoError(t, err)
	return c.Run(args[1:]), ui
}

func seed(t *testing.T, dbPath string) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Path: dbPath}, nil)
	require.NoError(t, err)

	for _, u := range []models.User{
		{ID: 3, Username: "owner", DisplayName: "Olive"},
		{ID: 7, Username: "starrer", DisplayName: "Sam"},
	} {
		u := u
		require.NoError(t, u.Create(db))
	}
	require.NoError(t, (&models.Project{ID: 42, AuthorID: 3, Title: "demo"}).Create(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestCommands_EndToEnd(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	code, ui := run(t, "migrate", "-config", cfgPath)
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "migration version 2")

	seed(t, dbPath)

	code, ui = run(t, "emit", "-config", cfgPath,
		"-type", "project_star", "-actor", "7",
		"-target-type", "project", "-target-id", "42",
		"-payload", `{"project_title":"demo"}`)
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Stored project_star event")

	code, ui = run(t, "notifications count", "-config", cfgPath, "-user", "3")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Equal(t, "1", strings.TrimSpace(ui.OutputWriter.String()))

	code, ui = run(t, "notifications list", "-config", cfgPath, "-user", "3")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	out := ui.OutputWriter.String()
	assert.Contains(t, out, "unread")
	assert.Contains(t, out, "starred demo")
	assert.Contains(t, out, "/projects/42")

	code, ui = run(t, "notifications read-all", "-config", cfgPath, "-user", "3")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Marked 1 notification(s) read")

	code, ui = run(t, "events", "-config", cfgPath, "-target-type", "project", "-target-id", "42", "-format", "yaml")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "type: project_star")
	assert.Contains(t, ui.OutputWriter.String(), "project_title: demo")

	code, ui = run(t, "outbox", "-config", cfgPath)
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "pending: 1")
}

func TestEmit_Rejected(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	code, ui := run(t, "migrate", "-config", cfgPath)
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing type",
			args: []string{"-actor", "7"},
			want: "type flag is required",
		},
		{
			name: "unknown type",
			args: []string{"-type", "project_teleport", "-actor", "7"},
			want: "unknown event type",
		},
		{
			name: "bad payload",
			args: []string{"-type", "project_star", "-actor", "7", "-payload", "{"},
			want: "error parsing payload",
		},
		{
			name: "schema violation",
			args: []string{"-type", "project_star", "-actor", "7", "-target-type", "project", "-target-id", "42"},
			want: "event was not stored",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ui := run(t, append([]string{"emit", "-config", cfgPath}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.Contains(t, ui.ErrorWriter.String(), tt.want)
		})
	}
}

func TestNotifications_ParseIDs(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	code, ui := run(t, "notifications read", "-config", cfgPath, "-user", "3", "-ids", "1,x")
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), `invalid notification id "x"`)

	code, ui = run(t, "notifications delete", "-config", cfgPath, "-user", "3")
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "at least one notification id is required")
}

func TestEvents_FlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nothing", nil, "either the target flags or -actor is required"},
		{"both", []string{"-actor", "1", "-target-type", "project", "-target-id", "2"}, "not both"},
		{"half target", []string{"-target-type", "project"}, "must be set together"},
		{"bad format", []string{"-actor", "1", "-format", "xml"}, "unsupported format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ui := run(t, append([]string{"events"}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.Contains(t, ui.ErrorWriter.String(), tt.want)
		})
	}
}

func TestRegistry(t *testing.T) {
	code, ui := run(t, "registry")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	out := ui.OutputWriter.String()
	assert.Contains(t, out, "key: project_star")
	assert.Contains(t, out, "notification_types:")
	assert.Contains(t, out, "priority: urgent")

	code, ui = run(t, "registry", "-event", "projectStar")
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	out = ui.OutputWriter.String()
	assert.Contains(t, out, "name: project_title")
	assert.NotContains(t, out, "notification_types:")

	code, ui = run(t, "registry", "-event", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "unknown event type")
}

func TestVersion(t *testing.T) {
	code, ui := run(t, "version")
	require.Equal(t, 0, code)
	assert.Equal(t, version.Version, strings.TrimSpace(ui.OutputWriter.String()))
}
