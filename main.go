// Command tabula walks through the query tutorial end to end: it stores a
// synthetic grid of points in SQLite, loads it back as a Dataset and runs
// selection, filtering, grouped averaging and ordering queries through the
// in-memory engine. Every result is checked against the same query executed
// as SQL by SQLite.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/persistence"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/output"
	"github.com/asaidimu/go-tabula/reader"
	"github.com/asaidimu/go-tabula/sqlite"
)

const pointsSchemaYAML = `
name: points
version: 1.0.0
description: Synthetic grid with a smooth surface z and a parity flag a
columns:
  - name: x
    type: integer
  - name: y
    type: integer
  - name: z
    type: number
  - name: a
    type: integer
`

type tutorialQuery struct {
	title string
	dsl   query.QueryDSL
}

func tutorialQueries() []tutorialQuery {
	return []tutorialQuery{
		{
			title: "First rows of x, y, z",
			dsl:   query.NewQueryBuilder().Select().Include("x", "y", "z").End().Limit(5).Build(),
		},
		{
			title: "Points where a = 1",
			dsl:   query.NewQueryBuilder().Where("a").Eq(1).Select().Include("x", "y", "z").End().Build(),
		},
		{
			title: "Average z by a",
			dsl:   query.NewQueryBuilder().GroupBy("a").Avg("z", "avg_z").OrderByAsc("a").Build(),
		},
		{
			title: "Highest z first",
			dsl:   query.NewQueryBuilder().OrderByDesc("z").OrderByAsc("x").OrderByAsc("y").Limit(5).Build(),
		},
	}
}

func main() {
	dbPath := flag.String("db", ":memory:", "SQLite database path")
	format := flag.String("format", output.FormatTable, "output format: table, csv, json or yaml")
	parquetPath := flag.String("parquet", "", "load points from parquet files matching this pattern instead of generating them")
	queryPath := flag.String("query", "", "run the JSON or YAML query in this file instead of the tutorial queries")
	radius := flag.Int("radius", 3, "grid spans [-radius, radius] on both axes")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if *verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "timestamp"

	logger, err := config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	formatter, err := output.NewFormatter(*format, os.Stdout)
	if err != nil {
		logger.Fatal("Invalid output format", zap.Error(err))
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if *dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	p, err := persistence.NewPersistence(sqlite.NewSQLiteInteractor(db, logger, sqlite.DefaultInteractorOptions(), nil), nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize persistence", zap.Error(err))
	}

	p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.QueryExecuteFailed,
		Callback: func(_ context.Context, e persistence.PersistenceEvent) error {
			if e.Error != nil {
				logger.Warn("Query failed", zap.String("operation", e.Operation), zap.String("error", *e.Error))
			}
			return nil
		},
	})

	source, err := loadSource(*parquetPath, *radius, logger)
	if err != nil {
		logger.Fatal("Failed to prepare source data", zap.Error(err))
	}

	points, err := storePoints(ctx, p, source)
	if err != nil {
		logger.Fatal("Failed to store points", zap.Error(err))
	}

	queries := tutorialQueries()
	if *queryPath != "" {
		data, err := os.ReadFile(*queryPath)
		if err != nil {
			logger.Fatal("Failed to read query file", zap.Error(err))
		}
		dsl, err := query.ParseQuery(data)
		if err != nil {
			logger.Fatal("Failed to parse query file", zap.Error(err))
		}
		queries = []tutorialQuery{{title: *queryPath, dsl: *dsl}}
	}

	for _, q := range queries {
		if err := run(ctx, points, q, formatter, logger); err != nil {
			logger.Fatal("Query failed", zap.String("query", q.title), zap.Error(err))
		}
	}
}

// loadSource reads parquet input when a pattern is given and generates the
// grid otherwise.
func loadSource(parquetPattern string, radius int, logger *zap.Logger) (*dataset.Dataset, error) {
	if parquetPattern != "" {
		return reader.ReadDatasets(parquetPattern, logger)
	}
	s, err := schema.ParseSchema([]byte(pointsSchemaYAML))
	if err != nil {
		return nil, err
	}
	return dataset.FromSchema(s, grid(radius))
}

// grid returns every integer point of the square [-r, r]² with
// z = exp(-(x²+y²)/r²) rounded to three decimals and a = 1 when x+y is even.
func grid(r int) []schema.Document {
	if r < 1 {
		r = 1
	}
	scale := float64(r * r)
	rows := make([]schema.Document, 0, (2*r+1)*(2*r+1))
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			z := math.Round(math.Exp(-float64(x*x+y*y)/scale)*1000) / 1000
			a := 0
			if (x+y)%2 == 0 {
				a = 1
			}
			rows = append(rows, schema.Document{"x": x, "y": y, "z": z, "a": a})
		}
	}
	return rows
}

// storePoints replaces the points collection with the rows of source.
func storePoints(ctx context.Context, p *persistence.Persistence, source *dataset.Dataset) (*persistence.Collection, error) {
	description := "tutorial points"
	def := schema.SchemaDefinition{
		Name:        "points",
		Version:     "1.0.0",
		Description: &description,
		Columns:     source.Columns(),
	}

	names, err := p.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if name == def.Name {
			if _, err := p.Delete(ctx, name); err != nil {
				return nil, err
			}
		}
	}

	err = p.Transact(ctx, func(tx *persistence.Persistence) error {
		c, err := tx.Create(ctx, def)
		if err != nil {
			return err
		}
		_, err = c.Insert(ctx, source.Rows())
		return err
	})
	if err != nil {
		return nil, err
	}

	return p.Collection(ctx, def.Name)
}

// run executes q in memory, prints the result and compares it with the
// pushed-down SQL result.
func run(ctx context.Context, points *persistence.Collection, q tutorialQuery, formatter output.Formatter, logger *zap.Logger) error {
	result, err := points.Query(ctx, &q.dsl)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n", q.title)
	if err := formatter.Format(result); err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}

	pushed, err := points.Pushdown(ctx, &q.dsl)
	if err != nil {
		logger.Warn("Query cannot run in SQLite", zap.String("query", q.title), zap.Error(err))
		return nil
	}
	if !result.Equal(pushed) {
		logger.Warn("Engine and SQLite results differ", zap.String("query", q.title), zap.Int("engine_rows", result.Len()), zap.Int("sqlite_rows", pushed.Len()))
	} else {
		logger.Debug("Engine and SQLite results match", zap.String("query", q.title), zap.Int("rows", result.Len()))
	}
	return nil
}
