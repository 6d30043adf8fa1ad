package retention

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/chatkeep/internal/db"
	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/retention.db")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { database.Close() })
	return database
}

func insertTurns(t *testing.T, database *sql.DB, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		ts := turn.FormatTimestamp(start.Add(time.Duration(i) * time.Second))
		_, err := database.Exec(
			`INSERT INTO turns (is_user, content, timestamp) VALUES (?, ?, ?)`,
			i%2 == 0, fmt.Sprintf("m%d", i), ts,
		)
		require.NoError(t, err)
	}
}

func contents(t *testing.T, database *sql.DB) []string {
	t.Helper()
	rows, err := database.Query(`SELECT content FROM turns ORDER BY timestamp, id`)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	return out
}

func TestEnforce_KeepsNewest(t *testing.T) {
	database := testDB(t)
	insertTurns(t, database, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	removed, err := Policy{Cap: 3}.Enforce(context.Background(), database)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, []string{"m4", "m5", "m6"}, contents(t, database))
}

func TestEnforce_UnderCap(t *testing.T) {
	database := testDB(t)
	insertTurns(t, database, 2, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	removed, err := Default().Enforce(context.Background(), database)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Len(t, contents(t, database), 2)
}

func TestEnforce_TimestampOrderNotID(t *testing.T) {
	database := testDB(t)
	// Inserted out of chronological order: the oldest timestamp has the highest id.
	_, err := database.Exec(`INSERT INTO turns (is_user, content, timestamp) VALUES
		(1, 'newest', '2024-01-01T00:00:03.000Z'),
		(1, 'middle', '2024-01-01T00:00:02.000Z'),
		(1, 'oldest', '2024-01-01T00:00:01.000Z')`)
	require.NoError(t, err)

	removed, err := Policy{Cap: 2}.Enforce(context.Background(), database)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"middle", "newest"}, contents(t, database))
}

func TestEnforce_TiesBrokenByID(t *testing.T) {
	database := testDB(t)
	_, err := database.Exec(`INSERT INTO turns (is_user, content, timestamp) VALUES
		(1, 'a', '2024-01-01T00:00:00.000Z'),
		(0, 'b', '2024-01-01T00:00:00.000Z'),
		(1, 'c', '2024-01-01T00:00:00.000Z')`)
	require.NoError(t, err)

	_, err = Policy{Cap: 2}.Enforce(context.Background(), database)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, contents(t, database))
}

func TestEnforce_Disabled(t *testing.T) {
	database := testDB(t)
	insertTurns(t, database, 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	removed, err := Policy{Cap: 0}.Enforce(context.Background(), database)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Len(t, contents(t, database), 5)
}

func TestEnforce_ClosedDB(t *testing.T) {
	database := testDB(t)
	database.Close()

	_, err := Default().Enforce(context.Background(), database)
	assert.ErrorIs(t, err, turn.ErrTrimFailed)
}
