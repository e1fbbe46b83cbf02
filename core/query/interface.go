package query

import (
	"github.com/asaidimu/go-tabula/core/schema"
)

// QueryGeneratorFactory defines the interface for a factory that creates QueryGenerator instances.
// This allows for the creation of query generators that are specific to a given table schema.
type QueryGeneratorFactory interface {
	// CreateGenerator creates a new QueryGenerator for a specific schema.
	CreateGenerator(schema *schema.SchemaDefinition) (QueryGenerator, error)
}

// QueryGenerator translates a QueryDSL into a database-specific statement. It
// is the pushdown counterpart of Engine: the same query evaluated by the
// database instead of in memory.
type QueryGenerator interface {
	// GenerateSelectSQL creates a SELECT statement and its parameters, covering
	// filters, grouping, aggregations, ordering and pagination. Go predicates
	// and custom operators cannot be translated and cause an error.
	GenerateSelectSQL(dsl *QueryDSL) (string, []any, error)

	// GenerateInsertSQL creates a batch INSERT statement and its parameters
	// from a slice of rows.
	GenerateInsertSQL(records []schema.Document) (string, []any, error)

	// GenerateDeleteSQL creates a DELETE statement. For safety, it requires a
	// filter unless unsafeDelete is set.
	GenerateDeleteSQL(filters *QueryFilter, unsafeDelete bool) (string, []any, error)
}
