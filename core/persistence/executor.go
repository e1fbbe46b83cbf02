package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// Executor orchestrates dataset operations by coordinating between the
// DatabaseInteractor, which owns storage, and the query Engine, which owns
// query semantics.
type Executor struct {
	interactor DatabaseInteractor
	engine     *query.Engine
	logger     *zap.Logger
}

// NewExecutor creates an Executor. A nil engine is replaced by one built with
// the default options.
func NewExecutor(interactor DatabaseInteractor, engine *query.Engine, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = query.NewEngine(logger, query.DefaultEngineOptions())
	}
	return &Executor{
		interactor: interactor,
		engine:     engine,
		logger:     logger,
	}
}

// Engine returns the engine that evaluates queries.
func (e *Executor) Engine() *query.Engine {
	return e.engine
}

// Load reads the whole table into an immutable Dataset in schema column order.
func (e *Executor) Load(ctx context.Context, schema *schema.SchemaDefinition) (*dataset.Dataset, error) {
	ds, err := e.interactor.SelectDocuments(ctx, schema, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Loaded dataset", zap.String("collection", schema.Name), zap.Int("rows", ds.Len()))
	return ds, nil
}

// Query loads the table and evaluates the query in memory.
func (e *Executor) Query(ctx context.Context, schema *schema.SchemaDefinition, dsl *query.QueryDSL) (*dataset.Dataset, error) {
	ds, err := e.Load(ctx, schema)
	if err != nil {
		return nil, err
	}
	return e.engine.Execute(ds, dsl)
}

// Pushdown translates the query to SQL and lets the database evaluate it.
// Go predicates and registered custom operators cannot be translated and are
// rejected.
func (e *Executor) Pushdown(ctx context.Context, schema *schema.SchemaDefinition, dsl *query.QueryDSL) (*dataset.Dataset, error) {
	if dsl == nil {
		return nil, query.QueryValidationError{Field: "query", Message: "query cannot be nil"}
	}
	return e.interactor.SelectDocuments(ctx, schema, dsl)
}

// Insert writes the records inside a single transaction, so a failing batch
// leaves the table untouched. When the interactor is already transactional
// the caller owns the transaction.
func (e *Executor) Insert(ctx context.Context, schema *schema.SchemaDefinition, records []schema.Document) (int64, error) {
	tx, err := e.interactor.StartTransaction(ctx)
	if err != nil {
		e.logger.Debug("Inserting without a dedicated transaction", zap.Error(err))
		return e.interactor.InsertDocuments(ctx, schema, records)
	}

	n, err := tx.InsertDocuments(ctx, schema, records)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.logger.Error("Rollback failed", zap.Error(rbErr))
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}
	return n, nil
}

// Delete performs a delete operation with optional filters for safety.
func (e *Executor) Delete(ctx context.Context, schema *schema.SchemaDefinition, filters *query.QueryFilter, unsafeDelete bool) (int64, error) {
	return e.interactor.DeleteDocuments(ctx, schema, filters, unsafeDelete)
}
