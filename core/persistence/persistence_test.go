package persistence_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-tabula/core/persistence"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/sqlite"
)

func newPersistence(t *testing.T) *persistence.Persistence {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	p, err := persistence.NewPersistence(sqlite.NewSQLiteInteractor(db, nil, nil, nil), nil, nil)
	require.NoError(t, err)
	return p
}

func pointsSchema() schema.SchemaDefinition {
	description := "synthetic grid"
	return schema.SchemaDefinition{
		Name:        "points",
		Version:     "1.0.0",
		Description: &description,
		Columns: []schema.ColumnDefinition{
			{Name: "x", Type: schema.ColumnTypeInteger},
			{Name: "y", Type: schema.ColumnTypeInteger},
			{Name: "z", Type: schema.ColumnTypeNumber},
			{Name: "a", Type: schema.ColumnTypeInteger},
		},
	}
}

var tutorialRows = []schema.Document{
	{"x": -1, "y": -1, "z": 0.115, "a": 1},
	{"x": -1, "y": 0, "z": 0.5, "a": 0},
	{"x": 0, "y": 1, "z": 0.25, "a": 1},
}

func TestPersistence_CreateAndLookup(t *testing.T) {
	p := newPersistence(t)
	ctx := context.Background()

	_, err := p.Create(ctx, pointsSchema())
	require.NoError(t, err)

	_, err = p.Create(ctx, pointsSchema())
	assert.ErrorContains(t, err, "already exists")

	_, err = p.Create(ctx, schema.SchemaDefinition{Name: "bad"})
	var schemaErr *schema.SchemaError
	assert.ErrorAs(t, err, &schemaErr)

	names, err := p.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"points"}, names)

	s, err := p.Schema(ctx, "points")
	require.NoError(t, err)
	assert.Equal(t, pointsSchema(), *s)

	_, err = p.Collection(ctx, "missing")
	assert.ErrorContains(t, err, "does not exist")

	ok, err := p.Delete(ctx, "points")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err = p.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = p.Collection(ctx, "points")
	assert.Error(t, err)
}

func TestCollection_InsertAndQuery(t *testing.T) {
	p := newPersistence(t)
	ctx := context.Background()

	c, err := p.Create(ctx, pointsSchema())
	require.NoError(t, err)

	n, err := c.Insert(ctx, tutorialRows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ds, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z", "a"}, ds.ColumnNames())
	assert.Equal(t, 3, ds.Len())

	dsl := query.NewQueryBuilder().Where("a").Eq(1).Select().Include("x", "y", "z").End().Build()
	inMemory, err := c.Query(ctx, &dsl)
	require.NoError(t, err)
	pushed, err := c.Pushdown(ctx, &dsl)
	require.NoError(t, err)
	assert.True(t, inMemory.Equal(pushed))
	assert.Equal(t, []schema.Document{
		{"x": int64(-1), "y": int64(-1), "z": 0.115},
		{"x": int64(0), "y": int64(1), "z": 0.25},
	}, inMemory.Rows())

	q, err := c.From(ctx)
	require.NoError(t, err)
	grouped, err := q.GroupBy("a").Aggregate(query.Avg("z", "avg_z")).OrderBy("a").Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "avg_z"}, grouped.ColumnNames())
	assert.Equal(t, 2, grouped.Len())

	t.Run("predicates only run in memory", func(t *testing.T) {
		dsl := query.NewQueryBuilder().Filter(func(row schema.Document) bool { return row["x"].(int64) < 0 }).Build()
		ds, err := c.Query(ctx, &dsl)
		require.NoError(t, err)
		assert.Equal(t, 2, ds.Len())

		_, err = c.Pushdown(ctx, &dsl)
		assert.Error(t, err)
	})

	t.Run("reopened collection sees the same rows", func(t *testing.T) {
		again, err := p.Collection(ctx, "points")
		require.NoError(t, err)
		ds, err := again.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
	})

	t.Run("delete", func(t *testing.T) {
		filter := query.NewQueryBuilder().Where("a").Eq(0).Build().Filters
		n, err := c.Delete(ctx, filter, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestCollection_InsertIsAllOrNothing(t *testing.T) {
	p := newPersistence(t)
	ctx := context.Background()

	c, err := p.Create(ctx, pointsSchema())
	require.NoError(t, err)

	_, err = c.Insert(ctx, []schema.Document{
		{"x": 1, "y": 1, "z": 1.0, "a": 1},
		{"x": 1, "y": 1, "z": "high", "a": 1},
	})
	var rowErr *persistence.RowValidationError
	require.ErrorAs(t, err, &rowErr)
	require.Len(t, rowErr.Issues, 1)
	assert.Equal(t, "rows[1].z", rowErr.Issues[0].Path)

	ds, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())

	assert.False(t, c.Validate(map[string]any{"x": 1}, false).Valid)
	assert.True(t, c.Validate(map[string]any{"x": 1}, true).Valid)
}

func TestPersistence_Transact(t *testing.T) {
	p := newPersistence(t)
	ctx := context.Background()

	err := p.Transact(ctx, func(tx *persistence.Persistence) error {
		c, err := tx.Create(ctx, pointsSchema())
		if err != nil {
			return err
		}
		_, err = c.Insert(ctx, tutorialRows)
		return err
	})
	require.NoError(t, err)

	c, err := p.Collection(ctx, "points")
	require.NoError(t, err)
	ds, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	other := pointsSchema()
	other.Name = "discarded"
	err = p.Transact(ctx, func(tx *persistence.Persistence) error {
		if _, err := tx.Create(ctx, other); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	names, err := p.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"points"}, names)
}

func TestPersistence_Events(t *testing.T) {
	p := newPersistence(t)
	ctx := context.Background()

	var mu sync.Mutex
	received := map[persistence.PersistenceEventType][]persistence.PersistenceEvent{}
	record := func(_ context.Context, e persistence.PersistenceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received[e.Type] = append(received[e.Type], e)
		return nil
	}
	count := func(eventType persistence.PersistenceEventType) int {
		mu.Lock()
		defer mu.Unlock()
		return len(received[eventType])
	}

	label := "queries"
	ids := []string{
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{Event: persistence.QueryExecuteStart, Label: &label, Callback: record}),
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{Event: persistence.QueryExecuteSuccess, Callback: record}),
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{Event: persistence.QueryExecuteFailed, Callback: record}),
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{Event: persistence.CollectionInsertSuccess, Callback: record}),
	}
	assert.Len(t, p.Subscriptions(), 4)

	c, err := p.Create(ctx, pointsSchema())
	require.NoError(t, err)
	_, err = c.Insert(ctx, tutorialRows)
	require.NoError(t, err)

	dsl := query.NewQueryBuilder().GroupBy("a").Avg("z", "").Build()
	_, err = c.Query(ctx, &dsl)
	require.NoError(t, err)

	bad := query.NewQueryBuilder().OrderByAsc("w").Build()
	_, err = c.Query(ctx, &bad)
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return count(persistence.QueryExecuteStart) == 2 &&
			count(persistence.QueryExecuteSuccess) == 1 &&
			count(persistence.QueryExecuteFailed) == 1 &&
			count(persistence.CollectionInsertSuccess) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	failed := received[persistence.QueryExecuteFailed][0]
	success := received[persistence.QueryExecuteSuccess][0]
	mu.Unlock()

	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "unknown column 'w'")
	require.NotNil(t, failed.Collection)
	assert.Equal(t, "points", *failed.Collection)
	require.NotNil(t, success.QueryID)
	assert.NotNil(t, success.Duration)
	assert.Equal(t, "query", success.Operation)

	for _, id := range ids {
		p.UnregisterSubscription(id)
	}
	assert.Empty(t, p.Subscriptions())
}
