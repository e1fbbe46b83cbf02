package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
)

// RowValidationError is returned by Insert when rows do not conform to the
// collection schema. Nothing is written in that case.
type RowValidationError struct {
	Collection string
	Issues     []schema.Issue
}

func (e *RowValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("rows do not conform to collection '%s'", e.Collection)
	}
	return fmt.Sprintf("rows do not conform to collection '%s': %s: %s (%d issues)", e.Collection, e.Issues[0].Path, e.Issues[0].Message, len(e.Issues))
}

// Collection is a table bound to its schema. Reads produce immutable
// Datasets; queries run either in memory through the engine or in the
// database through SQL pushdown. Every operation emits start, success and
// failure events on the owning Persistence's bus.
type Collection struct {
	schema    *schema.SchemaDefinition
	executor  *Executor
	validator *schema.Validator
	emitter   emitter
}

func newCollection(s *schema.SchemaDefinition, executor *Executor, em emitter) *Collection {
	return &Collection{
		schema:    s,
		executor:  executor,
		validator: schema.NewValidator(s),
		emitter:   em,
	}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.schema.Name
}

// Schema returns the collection's schema definition.
func (c *Collection) Schema() schema.SchemaDefinition {
	return *c.schema
}

// Validate checks a single row against the collection schema.
func (c *Collection) Validate(data map[string]any, loose bool) *schema.ValidationResult {
	valid, issues := c.validator.Validate(data, loose)
	return &schema.ValidationResult{Valid: valid, Issues: issues}
}

// Insert validates every row and then writes all of them in one
// transaction. It returns the number of rows written.
func (c *Collection) Insert(ctx context.Context, rows []schema.Document) (int64, error) {
	result, err := c.emitter.withEventEmission("insert", collectionInsertEvents, c.schema.Name, len(rows), nil, func() (any, error) {
		var issues []schema.Issue
		for i, row := range rows {
			valid, rowIssues := c.validator.Validate(row, false)
			if valid {
				continue
			}
			for _, issue := range rowIssues {
				issue.Path = fmt.Sprintf("rows[%d].%s", i, issue.Path)
				issues = append(issues, issue)
			}
		}
		if len(issues) > 0 {
			return nil, &RowValidationError{Collection: c.schema.Name, Issues: issues}
		}
		return c.executor.Insert(ctx, c.schema, rows)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Load reads the whole collection into a Dataset.
func (c *Collection) Load(ctx context.Context) (*dataset.Dataset, error) {
	return c.executor.Load(ctx, c.schema)
}

// From loads the collection and starts a fluent query over it, evaluated by
// the collection's engine.
func (c *Collection) From(ctx context.Context) (*query.Query, error) {
	ds, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return c.executor.Engine().From(ds), nil
}

// Query evaluates the query in memory over the current contents of the
// collection.
func (c *Collection) Query(ctx context.Context, dsl *query.QueryDSL) (*dataset.Dataset, error) {
	return c.run("query", dsl, func() (*dataset.Dataset, error) {
		return c.executor.Query(ctx, c.schema, dsl)
	})
}

// Pushdown evaluates the query in the database. Results match Query except
// that rows tied under the ordering may come back in a different order.
func (c *Collection) Pushdown(ctx context.Context, dsl *query.QueryDSL) (*dataset.Dataset, error) {
	return c.run("pushdown", dsl, func() (*dataset.Dataset, error) {
		return c.executor.Pushdown(ctx, c.schema, dsl)
	})
}

func (c *Collection) run(operation string, dsl *query.QueryDSL, fn func() (*dataset.Dataset, error)) (*dataset.Dataset, error) {
	result, err := c.emitter.withEventEmission(operation, queryExecuteEvents, c.schema.Name, nil, dsl, func() (any, error) {
		ds, err := fn()
		if err != nil {
			return nil, err
		}
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*dataset.Dataset), nil
}

// Delete removes the rows matching the filter. A nil filter is refused unless
// unsafeDelete is set.
func (c *Collection) Delete(ctx context.Context, filter *query.QueryFilter, unsafeDelete bool) (int64, error) {
	result, err := c.emitter.withEventEmission("delete", rowsDeleteEvents, c.schema.Name, nil, filter, func() (any, error) {
		return c.executor.Delete(ctx, c.schema, filter, unsafeDelete)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}
