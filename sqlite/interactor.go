// Package sqlite provides a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite databases. It handles the specifics of connecting to, querying,
// and managing a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/persistence"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// dbRunner is an interface that abstracts the common methods of *sql.DB and *sql.Tx,
// allowing for the same code to be used for both transactional and non-transactional
// database operations.
type dbRunner interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteInteractor is a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite. It manages the database connection, generates SQL queries,
// and executes them against the database. It can operate in both transactional and
// non-transactional modes.
type SQLiteInteractor struct {
	db                    *sql.DB
	tx                    *sql.Tx
	queryGeneratorFactory query.QueryGeneratorFactory
	logger                *zap.Logger
	options               *persistence.InteractorOptions
}

// Ensure SQLiteInteractor implements the persistence.DatabaseInteractor interface.
var _ persistence.DatabaseInteractor = (*SQLiteInteractor)(nil)

// NewSQLiteInteractor creates a new instance of the SQLiteInteractor. It can be
// configured to operate in transactional mode by providing a non-nil *sql.Tx.
func NewSQLiteInteractor(db *sql.DB, logger *zap.Logger, options *persistence.InteractorOptions, tx *sql.Tx) *SQLiteInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultInteractorOptions()
	}
	return &SQLiteInteractor{
		db:                    db,
		tx:                    tx,
		options:               options,
		queryGeneratorFactory: NewSqliteQueryGeneratorFactory(options.TablePrefix),
		logger:                logger,
	}
}

// runner returns the appropriate dbRunner for the current context, either the
// database connection pool or the active transaction.
func (i *SQLiteInteractor) runner() dbRunner {
	if i.tx != nil {
		return i.tx
	}
	return i.db
}

// readRows reads all rows from a *sql.Rows object and converts them into
// schema.Documents, returning the result column order alongside. Values of
// schema columns are converted to the column's declared type; other columns,
// such as aggregation aliases, keep the driver's value.
func readRows(logger *zap.Logger, sc *schema.SchemaDefinition, rows *sql.Rows) ([]string, []schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []schema.Document{}
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			val := values[i]
			if byteVal, isByte := val.([]byte); isByte {
				val = string(byteVal)
			}
			if val == nil {
				row[col] = nil
				continue
			}

			colDef := sc.FindColumn(col)
			if colDef == nil {
				row[col] = val
				continue
			}

			switch colDef.Type {
			case schema.ColumnTypeInteger:
				if floatVal, isFloat := val.(float64); isFloat {
					row[col] = int64(floatVal)
				} else {
					row[col] = val
				}
			case schema.ColumnTypeNumber:
				if intVal, isInt := val.(int64); isInt {
					row[col] = float64(intVal)
				} else {
					row[col] = val
				}
			default:
				row[col] = val
			}
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	logger.Debug("Read rows", zap.Int("count", len(results)), zap.Strings("columns", columns))
	return columns, results, nil
}

// resultColumns types the columns of a SELECT result. Schema columns keep their
// declared type and aggregation aliases follow the engine's typing rules:
// avg is a number, count an integer, and sum, min and max keep the source type.
func resultColumns(sc *schema.SchemaDefinition, dsl *query.QueryDSL, names []string) []schema.ColumnDefinition {
	aggregations := make(map[string]query.AggregationConfiguration, len(dsl.Aggregations))
	for _, agg := range dsl.Aggregations {
		aggregations[agg.OutputName()] = agg
	}

	defs := make([]schema.ColumnDefinition, len(names))
	for i, name := range names {
		defs[i] = schema.ColumnDefinition{Name: name, Type: schema.ColumnTypeNumber}
		if agg, ok := aggregations[name]; ok {
			switch agg.Type {
			case query.AggregationTypeAvg:
			case query.AggregationTypeCount:
				defs[i].Type = schema.ColumnTypeInteger
			default:
				if src := sc.FindColumn(agg.Field); src != nil {
					defs[i].Type = src.Type
				}
			}
			continue
		}
		if col := sc.FindColumn(name); col != nil {
			defs[i].Type = col.Type
		}
	}
	return defs
}

// SelectDocuments executes a SELECT query against the database and returns the
// result as a Dataset whose column order follows the generated SELECT list.
func (i *SQLiteInteractor) SelectDocuments(ctx context.Context, schema *schema.SchemaDefinition, dsl *query.QueryDSL) (*dataset.Dataset, error) {
	if dsl == nil {
		dsl = &query.QueryDSL{}
	}
	queryGenerator, err := i.queryGeneratorFactory.CreateGenerator(schema)
	if err != nil {
		return nil, fmt.Errorf("could not get a query generator instance: %w", err)
	}

	sqlQuery, queryParams, err := queryGenerator.GenerateSelectSQL(dsl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL query: %w", err)
	}

	i.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.Any("params", queryParams))

	rows, err := i.runner().QueryContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		i.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w \n %s", err, sqlQuery)
	}
	defer rows.Close()

	columns, docs, err := readRows(i.logger, schema, rows)
	if err != nil {
		return nil, err
	}
	return dataset.New(resultColumns(schema, dsl, columns), docs)
}

// InsertDocuments inserts the records in batches of options.BatchSize rows and
// returns the number of rows written. Callers wanting all-or-nothing semantics
// run it on a transactional interactor.
func (i *SQLiteInteractor) InsertDocuments(ctx context.Context, sc *schema.SchemaDefinition, records []schema.Document) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	queryGenerator, err := i.queryGeneratorFactory.CreateGenerator(sc)
	if err != nil {
		return 0, fmt.Errorf("could not get a query generator instance: %w", err)
	}

	batchSize := i.options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var inserted int64
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))

		sqlQuery, queryParams, err := queryGenerator.GenerateInsertSQL(records[start:end])
		if err != nil {
			return inserted, fmt.Errorf("failed to generate INSERT SQL for rows %d-%d: %w", start, end-1, err)
		}

		i.logger.Debug("Executing SQL INSERT", zap.Int("rows", end-start), zap.Int("params", len(queryParams)))

		result, err := i.runner().ExecContext(ctx, sqlQuery, queryParams...)
		if err != nil {
			i.logger.Error("Failed to execute INSERT query", zap.Error(err))
			return inserted, fmt.Errorf("failed to execute INSERT query: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

// DeleteDocuments executes a DELETE query against the database.
func (i *SQLiteInteractor) DeleteDocuments(ctx context.Context, schema *schema.SchemaDefinition, filters *query.QueryFilter, unsafeDelete bool) (int64, error) {
	queryGenerator, err := i.queryGeneratorFactory.CreateGenerator(schema)
	if err != nil {
		return 0, fmt.Errorf("could not get a query generator instance: %w", err)
	}

	sqlQuery, queryParams, err := queryGenerator.GenerateDeleteSQL(filters, unsafeDelete)
	if err != nil {
		return 0, fmt.Errorf("failed to generate DELETE SQL: %w", err)
	}

	i.logger.Debug("Executing SQL DELETE", zap.String("sql", sqlQuery), zap.Any("params", queryParams))

	result, err := i.runner().ExecContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		i.logger.Error("Failed to execute DELETE query", zap.Error(err), zap.String("sql", sqlQuery))
		return 0, fmt.Errorf("failed to execute DELETE query: %w", err)
	}
	return result.RowsAffected()
}

// StartTransaction begins a new database transaction and returns a new SQLiteInteractor
// that is scoped to that transaction.
func (i *SQLiteInteractor) StartTransaction(ctx context.Context) (persistence.DatabaseInteractor, error) {
	if i.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional interactor")
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	i.logger.Debug("Transaction initiated, returning new transactional interactor")
	return NewSQLiteInteractor(i.db, i.logger, i.options, tx), nil
}

// Commit commits the current transaction.
func (i *SQLiteInteractor) Commit(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	i.logger.Debug("Committing transaction")
	return i.tx.Commit()
}

// Rollback rolls back the current transaction.
func (i *SQLiteInteractor) Rollback(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	i.logger.Debug("Rolling back transaction")
	return i.tx.Rollback()
}
