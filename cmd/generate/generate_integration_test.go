package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgschema/pgquerier/cmd/util"
	"github.com/pgschema/pgquerier/testutil"
)

const generateFixture = `
CREATE TYPE status AS ENUM ('open', 'closed');

CREATE TABLE users (
    id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    name text NOT NULL,
    email text,
    state status NOT NULL DEFAULT 'open'
);
`

const usersQueries = `--! get_user : maybe-one
SELECT id, name, email FROM users WHERE id = :id;

--! list_users : many
SELECT id, name, email FROM users;

--! count_by_state : one
SELECT count(*) AS total FROM users WHERE state = :state;

--! delete_user : execute
DELETE FROM users WHERE id = :id;
`

func writeQueries(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func containerConfig(ci *testutil.ContainerInfo) util.ConnectionConfig {
	return util.ConnectionConfig{
		Host:     ci.Host,
		Port:     ci.Port,
		Database: ci.Database,
		User:     ci.User,
		Password: ci.Password,
		SSLMode:  "disable",
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)
	container.MustExec(ctx, t, generateFixture)

	queriesDir := writeQueries(t, map[string]string{"users.sql": usersQueries})
	outDir := t.TempDir()

	cfg := &Config{
		Queries:    queriesDir,
		Out:        outDir,
		Package:    "store",
		Connection: containerConfig(container),
	}
	require.NoError(t, Run(ctx, cfg))

	db, err := os.ReadFile(filepath.Join(outDir, "db.go"))
	require.NoError(t, err)
	assert.Contains(t, string(db), "type DBTX interface {")

	types, err := os.ReadFile(filepath.Join(outDir, "types.go"))
	require.NoError(t, err)
	assert.Contains(t, string(types), "type Status string")
	assert.Contains(t, string(types), `"public.status"`)

	mod, err := os.ReadFile(filepath.Join(outDir, "users.sql.go"))
	require.NoError(t, err)
	src := string(mod)

	// Nullability: name is a NOT NULL table column, email is nullable.
	assert.Regexp(t, `Name\s+string`, src)
	assert.Regexp(t, `Email\s+\*string`, src)

	assert.Contains(t, src, "func (q *Queries) GetUser(ctx context.Context, arg GetUserParams) (*GetUserRow, error) {")
	assert.Contains(t, src, "func (q *Queries) ListUsers(ctx context.Context) ([]GetUserRow, error) {")
	assert.Contains(t, src, "func (q *Queries) CountByState(ctx context.Context, arg CountByStateParams) (CountByStateRow, error) {")
	assert.Contains(t, src, "func (q *Queries) DeleteUser(ctx context.Context, arg GetUserParams) (int64, error) {")

	// count(*) is an aggregate expression, so the column is nullable.
	assert.Regexp(t, `Total\s+\*int64`, src)
}

const viewFixture = `
CREATE TABLE orders (
    id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    user_id bigint NOT NULL,
    total bigint NOT NULL
);

CREATE VIEW user_orders AS
SELECT u.name AS user_name, o.total
FROM users u
LEFT JOIN orders o ON o.user_id = u.id;
`

func TestGenerateViewOverOuterJoin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)
	container.MustExec(ctx, t, generateFixture)
	container.MustExec(ctx, t, viewFixture)

	// The view's base columns are NOT NULL, but its LEFT JOIN null-extends
	// them; the statement only names the view, so no hint may be trusted.
	queriesDir := writeQueries(t, map[string]string{"orders.sql": `--! order_totals : many
SELECT user_name, total FROM user_orders;

--! order_total : one
SELECT total FROM orders WHERE id = :id;
`})
	outDir := t.TempDir()

	cfg := &Config{
		Queries:    queriesDir,
		Out:        outDir,
		Package:    "store",
		Connection: containerConfig(container),
	}
	require.NoError(t, Run(ctx, cfg))

	mod, err := os.ReadFile(filepath.Join(outDir, "orders.sql.go"))
	require.NoError(t, err)
	src := string(mod)

	assert.Regexp(t, `UserName\s+\*string`, src)
	assert.Regexp(t, `Total\s+\*int64`, src)

	// Reading the same column straight off the table keeps its constraint.
	assert.Regexp(t, `Total\s+int64`, src)
}

func TestGenerateIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)
	container.MustExec(ctx, t, generateFixture)

	queriesDir := writeQueries(t, map[string]string{"users.sql": usersQueries})

	read := func(dir string) map[string][]byte {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		out := make(map[string][]byte)
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			out[e.Name()] = data
		}
		return out
	}

	firstOut, secondOut := t.TempDir(), t.TempDir()
	for _, dir := range []string{firstOut, secondOut} {
		cfg := &Config{
			Queries:    queriesDir,
			Out:        dir,
			Package:    "store",
			Connection: containerConfig(container),
		}
		require.NoError(t, Run(ctx, cfg))
	}

	first, second := read(firstOut), read(secondOut)
	require.Equal(t, len(first), len(second))
	for name, content := range first {
		assert.Equal(t, content, second[name], "generated %s must be byte-identical across runs", name)
	}
}

func TestGenerateReportsServerRejection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)
	container.MustExec(ctx, t, generateFixture)

	queriesDir := writeQueries(t, map[string]string{
		"users.sql": usersQueries,
		"broken.sql": `--! bad_query : many
SELECT id FROM no_such_table;
`,
	})
	outDir := t.TempDir()

	cfg := &Config{
		Queries:    queriesDir,
		Out:        outDir,
		Package:    "store",
		Connection: containerConfig(container),
	}
	err := Run(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDiagnostics))

	// The clean file still emits; the failed one does not.
	_, err = os.Stat(filepath.Join(outDir, "users.sql.go"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "broken.sql.go"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckWritesNothing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)
	container.MustExec(ctx, t, generateFixture)

	queriesDir := writeQueries(t, map[string]string{"users.sql": usersQueries})

	cfg := &Config{
		Queries:    queriesDir,
		CheckOnly:  true,
		Connection: containerConfig(container),
	}
	require.NoError(t, Run(ctx, cfg))
}
