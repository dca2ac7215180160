package migrate

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	// The golang-migrate sqlite driver registers modernc's "sqlite" driver.
	db, err := sql.Open("sqlite", t.TempDir()+"/commons.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_SQLite(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, RunMigrations(db, "sqlite"))
	require.NoError(t, RunMigrations(db, "sqlite"), "running twice is a no-op")

	version, dirty, err := GetMigrationVersion(db, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"users", "projects", "project_collaborators", "follows", "comments", "events", "event_outbox", "notifications"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	_, err = db.Exec(`INSERT INTO events (event_type, actor_id, target_type, target_id, public) VALUES ('project_star', 7, 'project', 42, 1)`)
	require.NoError(t, err)
	var data string
	require.NoError(t, db.QueryRow(`SELECT event_data FROM events`).Scan(&data))
	assert.Equal(t, "{}", data)
}

func TestRunMigrations_UnsupportedDriver(t *testing.T) {
	err := RunMigrations(nil, "oracle")
	assert.ErrorContains(t, err, "unsupported database driver")

	_, _, err = GetMigrationVersion(nil, "mysql")
	assert.Error(t, err)
}
