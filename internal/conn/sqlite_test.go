package conn

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxconn/internal/driver"
	"fluxconn/internal/shape"
)

func openSQLite(t *testing.T) *Conn {
	t.Helper()
	ctx := context.Background()

	c, err := Open(ctx, Config{
		Driver:     driver.SQLite(),
		Descriptor: driver.Descriptor{DSN: filepath.Join(t.TempDir(), "people.db")},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Exec(ctx, "CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")
	require.NoError(t, err)
	for _, p := range []struct {
		name string
		age  int
	}{{"a", 30}, {"b", 40}} {
		_, err := c.Exec(ctx, "INSERT INTO people (name, age) VALUES (?, ?)", p.name, p.age)
		require.NoError(t, err)
	}
	return c
}

func TestSQLiteShapes(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	rows, err := c.FetchAll(ctx, "SELECT id, name FROM people ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"id": int64(1), "name": "a"}, rows[0].Map())
	assert.Equal(t, map[string]any{"id": int64(2), "name": "b"}, rows[1].Map())

	ids, err := c.FetchColumn(ctx, "SELECT id FROM people ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, ids)

	k, err := c.FetchKeyed(ctx, shape.AsString, "SELECT id, name FROM people WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, &shape.Keyed{Key: int64(1), Value: "a"}, k)

	all, err := c.FetchAllKeyed(ctx, shape.AsValues, "SELECT id, name, age FROM people WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, []shape.Keyed{{Key: int64(1), Value: []any{"a", int64(30)}}}, all)

	obj, err := c.FetchKeyed(ctx, shape.AsObject, "SELECT id, name, age FROM people WHERE id = ?", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "b", "age": int64(40)}, obj.Value)

	n, err := c.FetchValue(ctx, "SELECT COUNT(*) FROM people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLiteEmptyResult(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	row, err := c.FetchOne(ctx, "SELECT id, name FROM people WHERE id = ?", 99)
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err := c.FetchAll(ctx, "SELECT id, name FROM people WHERE id = ?", 99)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSQLiteInvalidQuery(t *testing.T) {
	c := openSQLite(t)

	_, err := c.Execute(context.Background(), "SELEKT id FROM people WHERE id = ?", 1)
	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.Code)
	assert.Contains(t, se.Debug, "SELEKT id FROM people WHERE id = 1")
}

func TestSQLitePauseKeepsData(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Pause())
	assert.False(t, c.Ping(ctx))

	names, err := c.FetchColumn(ctx, "SELECT name FROM people ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, names)
	assert.True(t, c.Ping(ctx))
}

func TestSQLiteStatementFetchLoop(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	st, err := c.Execute(ctx, "SELECT name FROM people ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, st.Columns())

	var names []any
	for {
		row, ok, err := st.Fetch()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, row.Values[0])
	}
	assert.Equal(t, []any{"a", "b"}, names)
	require.NoError(t, st.Close())
}

func TestSQLiteDrainedStatementFetchesNothing(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	st, err := c.Execute(ctx, "SELECT id FROM people")
	require.NoError(t, err)
	defer st.Close()

	first, err := st.FetchAll()
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := st.Rows()
	require.NoError(t, err)
	assert.Equal(t, []shape.Row{}, second)

	_, ok, err := st.Fetch()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteAdoptedPool(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	h, err := driver.FromDB(ctx, "sqlite", db)
	require.NoError(t, err)

	c, err := FromHandle(ctx, h, Config{Logger: quietLogger()})
	require.NoError(t, err)

	v, err := c.FetchValue(ctx, "SELECT 40 + 2")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	require.NoError(t, c.Disconnect())
	assert.NoError(t, db.PingContext(ctx), "the shared pool outlives the connection")
}
