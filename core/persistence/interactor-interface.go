package persistence

import (
	"context"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
)

// InteractorOptions configures table naming, DDL and insert batching.
type InteractorOptions struct {
	IfNotExists  bool   // CREATE TABLE IF NOT EXISTS
	DropIfExists bool   // drop an existing table before creating it
	TablePrefix  string // prepended to every collection name

	// BatchSize caps the number of rows written by a single INSERT statement.
	// Zero or negative selects the interactor's default.
	BatchSize int
}

// DatabaseInteractor is the storage boundary: it maps schemas to tables,
// moves rows in and out as Datasets and Documents, and scopes work in
// transactions.
//
// An interactor returned by StartTransaction runs every call inside that
// transaction until Commit or Rollback. Commit and Rollback fail on an
// interactor that is not transactional.
type DatabaseInteractor interface {
	// SelectDocuments runs the query in the database and returns the result
	// as a Dataset. A nil dsl selects every row and column.
	SelectDocuments(ctx context.Context, schema *schema.SchemaDefinition, dsl *query.QueryDSL) (*dataset.Dataset, error)
	// InsertDocuments validates, coerces and stores records, returning the
	// number of rows written.
	InsertDocuments(ctx context.Context, schema *schema.SchemaDefinition, records []schema.Document) (int64, error)
	// DeleteDocuments removes matching rows. A nil filter is refused unless
	// unsafeDelete is set.
	DeleteDocuments(ctx context.Context, schema *schema.SchemaDefinition, filters *query.QueryFilter, unsafeDelete bool) (int64, error)

	CreateCollection(schema schema.SchemaDefinition) error
	DropCollection(name string) error
	CollectionExists(name string) (bool, error)

	StartTransaction(ctx context.Context) (DatabaseInteractor, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
