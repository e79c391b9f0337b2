// Package testutil sets up migrated SQLite databases and seed rows for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/db"
)

// NewDB returns a migrated database in a temp dir. Closed on cleanup.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Init("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)

	err = db.RunMigrations(conn.DB, "sqlite")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// CreateUser inserts a verified user with a profile and returns its id.
func CreateUser(t *testing.T, conn *sqlx.DB, username string) string {
	t.Helper()

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := conn.Exec(`INSERT INTO users (id, email, email_verified_at, created_at) VALUES ($1, $2, $3, $4)`,
		id, fmt.Sprintf("%s@example.com", username), now, now)
	require.NoError(t, err)

	_, err = conn.Exec(`
		INSERT INTO profiles (id, user_id, username, current_streak, longest_streak, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5)
	`, uuid.New().String(), id, username, now, now)
	require.NoError(t, err)

	return id
}

// SetStreak overwrites a profile's streak counters.
func SetStreak(t *testing.T, conn *sqlx.DB, userID string, current, longest int) {
	t.Helper()

	_, err := conn.Exec(`UPDATE profiles SET current_streak = $1, longest_streak = $2 WHERE user_id = $3`,
		current, longest, userID)
	require.NoError(t, err)
}

// CreateGoal inserts a goal for date with the given join limit and returns its id.
func CreateGoal(t *testing.T, conn *sqlx.DB, userID, date string, joinLimit int) string {
	t.Helper()

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := conn.Exec(`
		INSERT INTO goals (id, user_id, date, goal_text, priority, join_limit, join_current_count, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'medium', $5, 0, FALSE, $6, $7)
	`, id, userID, date, "ship the landing page", joinLimit, now, now)
	require.NoError(t, err)

	return id
}

// JoinCount reads a goal's stored counter.
func JoinCount(t *testing.T, conn *sqlx.DB, goalID string) int {
	t.Helper()

	var count int
	err := conn.Get(&count, `SELECT join_current_count FROM goals WHERE id = $1`, goalID)
	require.NoError(t, err)
	return count
}
