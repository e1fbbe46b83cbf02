// Package sqlite provides the mapping logic from the abstract schema definition to
// concrete SQLite DDL (Data Definition Language). It is responsible for generating
// the SQL statements required to create and drop the tables that back datasets.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/persistence"
	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// DefaultBatchSize keeps a batched INSERT well below SQLite's default limit
// of 32766 bound variables for schemas of up to 64 columns.
const DefaultBatchSize = 500

// DefaultInteractorOptions returns a set of sensible default options for the
// SQLite interactor.
func DefaultInteractorOptions() *persistence.InteractorOptions {
	return &persistence.InteractorOptions{
		IfNotExists: true, // Prevent errors if a table already exists.
		BatchSize:   DefaultBatchSize,
	}
}

// quoteIdentifier safely quotes an identifier, such as a table or column name,
// to prevent SQL injection and to handle names that might be keywords or contain
// special characters.
func (s *SQLiteInteractor) quoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// getTableName constructs the full, quoted table name by applying the configured
// table prefix to the base name.
func (s *SQLiteInteractor) getTableName(baseName string) string {
	return s.quoteIdentifier(s.options.TablePrefix + baseName)
}

// CreateCollection generates and executes the DDL statements to create a table
// for the schema.
func (s *SQLiteInteractor) CreateCollection(sc schema.SchemaDefinition) error {
	if result := schema.ValidateSchema(&sc); !result.Valid {
		return &schema.SchemaError{Schema: sc.Name, Issues: result.Issues}
	}

	if s.options.DropIfExists {
		if err := s.DropCollection(sc.Name); err != nil {
			return err
		}
	}

	sqlStatements, err := s.CreateTableSQL(sc)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", sc.Name, err)
	}

	for _, stmt := range sqlStatements {
		s.logger.Debug("Executing DDL", zap.String("sql", stmt))
		if _, err := s.runner().Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}
	return nil
}

// CreateTableSQL generates the DDL SQL statements required to create a table from a
// schema definition. Every column is NOT NULL since dataset cells are never null.
func (s *SQLiteInteractor) CreateTableSQL(sc schema.SchemaDefinition) ([]string, error) {
	collection := s.getTableName(sc.Name)
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(collection + " (\n")

	columns := make([]string, 0, len(sc.Columns))
	for _, col := range sc.Columns {
		columnType, err := s.GetColumnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("error on column '%s': %w", col.Name, err)
		}
		columns = append(columns, fmt.Sprintf("    %s %s NOT NULL", s.quoteIdentifier(col.Name), columnType))
	}
	sb.WriteString(strings.Join(columns, ",\n"))
	sb.WriteString("\n);")
	return []string{sb.String()}, nil
}

// GetColumnType maps a schema.ColumnType to its corresponding SQLite column type.
func (s *SQLiteInteractor) GetColumnType(columnType schema.ColumnType) (string, error) {
	switch columnType {
	case schema.ColumnTypeString:
		return "TEXT", nil
	case schema.ColumnTypeNumber:
		return "REAL", nil
	case schema.ColumnTypeInteger:
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("unsupported column type: %s", columnType)
	}
}

// DropCollection drops a table from the database.
func (s *SQLiteInteractor) DropCollection(collection string) error {
	fullTableName := s.getTableName(collection)
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s;", fullTableName)
	_, err := s.runner().Exec(sql)
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", fullTableName, err)
	}
	return nil
}

// CollectionExists checks if a table exists in the database.
func (s *SQLiteInteractor) CollectionExists(collection string) (bool, error) {
	fullUnquotedName := s.options.TablePrefix + collection
	query := "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;"

	var name string
	err := s.runner().QueryRow(query, fullUnquotedName).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
