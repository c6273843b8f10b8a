//go:build integration

package authz

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/orgtree"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/platinummonkey/orgscope/pkg/usercontext"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const seed = `
INSERT INTO org_units (id, organization_id, parent_id, type, manager_user_id) VALUES
    ('C1', 'org-1', NULL, 'company', NULL),
    ('R1', 'org-1', 'C1', 'regional', 'gr1'),
    ('R2', 'org-1', 'C1', 'regional', NULL),
    ('S1', 'org-1', 'R1', 'store', 'sm1'),
    ('S2', 'org-1', 'R2', 'store', NULL),
    ('C2', 'org-2', NULL, 'company', NULL);

INSERT INTO users (id, organization_id, is_master) VALUES
    ('root', NULL, TRUE),
    ('go1', 'org-1', FALSE),
    ('gr1', 'org-1', FALSE),
    ('sm1', 'org-1', FALSE),
    ('sm2', 'org-1', FALSE),
    ('go2', 'org-2', FALSE);

INSERT INTO positions (id, user_id, unit_id, level, active) VALUES
    ('p-go1', 'go1', 'C1', 3, TRUE),
    ('p-gr1', 'gr1', 'R1', 2, TRUE),
    ('p-sm1', 'sm1', 'S1', 1, TRUE),
    ('p-sm2', 'sm2', 'S2', 1, TRUE),
    ('p-sm2-alt', 'sm2', 'S1', 1, FALSE),
    ('p-go2', 'go2', 'C2', 3, TRUE);

INSERT INTO tasks (id, unit_id, assignee_id, status) VALUES
    ('t1', 'S1', 'sm1', 'open'),
    ('t2', 'S2', NULL, 'done');
`

// setupPostgresTestDB starts PostgreSQL and applies the schema and seed data
func setupPostgresTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("orgscope_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_orgscope.sql"))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(schema))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, seed)
	require.NoError(t, err)

	return db
}

func newPostgresEngine(t *testing.T, db *sql.DB) *Engine {
	t.Helper()
	log, _ := test.NewNullLogger()

	cache, err := scopedcache.New(scopedcache.NewMemoryBackend(1000, time.Hour, 24*time.Hour), scopedcache.DefaultTTLPolicy(), log, nil)
	require.NoError(t, err)

	auditLogger, err := audit.NewDBLogger(context.Background(), db)
	require.NoError(t, err)

	tree := orgtree.NewIndex(orgtree.NewSQLSource(db), log)
	engine, err := NewEngine(Deps{
		DB:         db,
		Tree:       tree,
		Contexts:   usercontext.NewProvider(usercontext.NewSQLStore(db), tree, log, usercontext.WithCache(cache)),
		Cache:      cache,
		Dependents: permission.NewSQLDependencyCounter(db),
		Audit:      auditLogger,
		Log:        log,
	})
	require.NoError(t, err)
	return engine
}

func TestPostgres_Engine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	db := setupPostgresTestDB(t)
	engine := newPostgresEngine(t, db)

	contextOf := func(t *testing.T, userID string) hierarchy.UserContext {
		uctx, err := engine.Context(ctx, userID)
		require.NoError(t, err)
		return uctx
	}

	t.Run("regional manager lists own stores", func(t *testing.T) {
		stores, err := engine.ListUnits(ctx, contextOf(t, "gr1"), Query{Resource: hierarchy.ResourceStores})
		require.NoError(t, err)
		require.Len(t, stores, 1)
		assert.Equal(t, "S1", stores[0].ID)
	})

	t.Run("organization scope on users", func(t *testing.T) {
		users, err := engine.ListUsers(ctx, contextOf(t, "go2"), Query{})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "go2", users[0].ID)
		assert.Equal(t, hierarchy.RoleGO, users[0].Role)
	})

	t.Run("store with open tasks cannot be deleted", func(t *testing.T) {
		err := engine.DeleteUnit(ctx, contextOf(t, "go1"), "S1")
		require.Error(t, err)
		assert.True(t, hierarchy.IsDenied(err))

		var count int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_events WHERE status = 'denied' AND resource_id = 'S1'`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("move store to another region", func(t *testing.T) {
		require.NoError(t, engine.MoveUnit(ctx, contextOf(t, "go1"), "S2", "R1"))

		stores, err := engine.ListUnits(ctx, contextOf(t, "gr1"), Query{Resource: hierarchy.ResourceStores})
		require.NoError(t, err)
		ids := make([]string, 0, len(stores))
		for _, s := range stores {
			ids = append(ids, s.ID)
		}
		assert.Equal(t, []string{"S1", "S2"}, ids)
	})

	t.Run("activate position switches context", func(t *testing.T) {
		before := contextOf(t, "sm2")
		assert.Equal(t, "S2", before.UnitID)

		require.NoError(t, engine.ActivatePosition(ctx, contextOf(t, "go1"), "sm2", "p-sm2-alt"))

		after := contextOf(t, "sm2")
		assert.Equal(t, "S1", after.UnitID)
	})

	t.Run("soft delete user", func(t *testing.T) {
		require.NoError(t, engine.DeleteUser(ctx, contextOf(t, "root"), "sm2"))

		var status string
		require.NoError(t, db.QueryRowContext(ctx, `SELECT status FROM users WHERE id = 'sm2'`).Scan(&status))
		assert.Equal(t, "deleted", status)

		_, err := engine.Context(ctx, "sm2")
		assert.ErrorIs(t, err, hierarchy.ErrNoActivePosition)
	})
}
