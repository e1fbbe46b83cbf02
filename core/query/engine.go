package query

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/schema"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// StrictGrouping rejects grouped queries that project a column which is
	// neither a group-by column nor an aggregation output. When false such a
	// column takes its value from the first row of each group.
	StrictGrouping bool
}

// DefaultEngineOptions returns the options used when none are given.
func DefaultEngineOptions() *EngineOptions {
	return &EngineOptions{StrictGrouping: false}
}

// Engine evaluates QueryDSL values against datasets entirely in memory. It
// holds no per-query state, so one Engine may execute many queries
// concurrently over the same dataset.
type Engine struct {
	filterFunctions map[ComparisonOperator]PredicateFunction
	mu              sync.RWMutex
	logger          *zap.Logger
	options         *EngineOptions
}

// NewEngine creates a new Engine instance.
func NewEngine(logger *zap.Logger, options *EngineOptions) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultEngineOptions()
	}
	return &Engine{
		filterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:          logger,
		options:         options,
	}
}

// RegisterFilterFunction registers a Go function for a custom comparison operator.
func (e *Engine) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filterFunctions[operator] = fn
	e.logger.Info("Registered filter function", zap.String("operator", string(operator)))
}

// RegisterFilterFunctions registers multiple filter functions from a map.
func (e *Engine) RegisterFilterFunctions(functionMap map[ComparisonOperator]PredicateFunction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for operator, fn := range functionMap {
		e.filterFunctions[operator] = fn
		e.logger.Info("Registered filter function", zap.String("operator", string(operator)))
	}
}

// outputColumn is one column of the result: either copied from the source
// row (agg == nil) or computed by an aggregation.
type outputColumn struct {
	def schema.ColumnDefinition
	agg *AggregationConfiguration
}

// plan is a query validated against a dataset. Building it performs every
// column and type check, so executing it cannot fail on a bad reference.
type plan struct {
	filter     rowFilter
	predicates []Predicate
	grouped    bool
	groupBy    []string
	outputs    []outputColumn
	sort       []sortKey
	offset     int
	limit      int // negative means unbounded
}

// Execute runs dsl against ds and returns a new dataset. Stages run in a
// fixed order: filter, group and aggregate, project, order, paginate. All
// column references are validated before any row is read; on error no
// partial result is returned. ds is never modified.
func (e *Engine) Execute(ds *dataset.Dataset, dsl *QueryDSL) (*dataset.Dataset, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if dsl == nil {
		dsl = &QueryDSL{}
	}

	p, err := e.plan(ds, dsl)
	if err != nil {
		return nil, err
	}

	rows, err := p.filterRows(ds)
	if err != nil {
		return nil, fmt.Errorf("filter failed: %w", err)
	}
	e.logger.Debug("Rows remaining after filters", zap.Int("count", len(rows)))

	var out []schema.Document
	if p.grouped {
		out, err = p.aggregate(rows)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("Groups produced", zap.Int("count", len(out)), zap.Strings("groupBy", p.groupBy))
	} else {
		out = p.project(rows)
	}

	sortRows(out, p.sort)
	out = p.paginate(out)

	result, err := dataset.New(p.columnDefinitions(), out)
	if err != nil {
		return nil, fmt.Errorf("failed to build result dataset: %w", err)
	}
	e.logger.Debug("Rows returned after final projection", zap.Int("count", result.Len()))
	return result, nil
}

func (e *Engine) plan(ds *dataset.Dataset, dsl *QueryDSL) (*plan, error) {
	p := &plan{
		predicates: dsl.Predicates,
		grouped:    dsl.IsGrouped(),
		groupBy:    dsl.GroupBy,
		limit:      -1,
	}

	aggregations := make(map[string]*AggregationConfiguration, len(dsl.Aggregations))
	for i := range dsl.Aggregations {
		agg := &dsl.Aggregations[i]
		name := agg.OutputName()
		if _, dup := aggregations[name]; dup {
			return nil, QueryValidationError{Field: fmt.Sprintf("aggregations[%d].alias", i), Message: fmt.Sprintf("duplicate output column '%s'", name)}
		}
		aggregations[name] = agg
	}

	var include, exclude []ProjectionField
	if dsl.Projection != nil {
		include, exclude = dsl.Projection.Include, dsl.Projection.Exclude
		if len(include) > 0 && len(exclude) > 0 {
			return nil, QueryValidationError{Field: "projection", Message: "cannot have both include and exclude fields"}
		}
	}

	for _, f := range include {
		if _, isAgg := aggregations[f.Name]; !isAgg && !ds.HasColumn(f.Name) {
			return nil, &UnknownColumnError{Column: f.Name, Stage: "select", Available: ds.ColumnNames()}
		}
	}

	if dsl.Filters != nil {
		e.mu.RLock()
		filter, err := compileFilter(dsl.Filters, ds, e.filterFunctions)
		e.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		p.filter = filter
	}

	for _, col := range dsl.GroupBy {
		if !ds.HasColumn(col) {
			return nil, &UnknownColumnError{Column: col, Stage: "groupBy", Available: ds.ColumnNames()}
		}
	}

	aggDefs := make(map[string]schema.ColumnDefinition, len(dsl.Aggregations))
	for i := range dsl.Aggregations {
		agg := dsl.Aggregations[i]
		def, err := validateAggregation(ds, agg, i)
		if err != nil {
			return nil, err
		}
		aggDefs[agg.OutputName()] = def
	}

	outputs, err := p.resolveOutputs(ds, dsl, include, exclude, aggregations, aggDefs)
	if err != nil {
		return nil, err
	}
	p.outputs = outputs

	if p.grouped && e.options.StrictGrouping {
		grouped := make(map[string]struct{}, len(dsl.GroupBy))
		for _, col := range dsl.GroupBy {
			grouped[col] = struct{}{}
		}
		for _, out := range p.outputs {
			if _, ok := grouped[out.def.Name]; out.agg == nil && !ok {
				return nil, QueryValidationError{Field: "projection", Message: fmt.Sprintf("column '%s' must appear in group by or be aggregated", out.def.Name)}
			}
		}
	}

	outputNames := make([]string, len(p.outputs))
	inOutput := make(map[string]struct{}, len(p.outputs))
	for i, out := range p.outputs {
		outputNames[i] = out.def.Name
		inOutput[out.def.Name] = struct{}{}
	}
	for i, s := range dsl.Sort {
		if _, ok := inOutput[s.Field]; !ok {
			return nil, &UnknownColumnError{Column: s.Field, Stage: "orderBy", Available: outputNames}
		}
		switch s.Direction {
		case "", SortDirectionAsc:
			p.sort = append(p.sort, sortKey{field: s.Field})
		case SortDirectionDesc:
			p.sort = append(p.sort, sortKey{field: s.Field, descending: true})
		default:
			return nil, QueryValidationError{Field: fmt.Sprintf("sort[%d].direction", i), Message: fmt.Sprintf("unknown direction '%s'", s.Direction)}
		}
	}

	if pg := dsl.Pagination; pg != nil {
		if pg.Limit <= 0 {
			return nil, QueryValidationError{Field: "pagination.limit", Message: "limit must be greater than 0"}
		}
		p.limit = pg.Limit
		if pg.Offset != nil {
			if *pg.Offset < 0 {
				return nil, QueryValidationError{Field: "pagination.offset", Message: "offset cannot be negative"}
			}
			p.offset = *pg.Offset
		}
	}

	return p, nil
}

func validateAggregation(ds *dataset.Dataset, agg AggregationConfiguration, i int) (schema.ColumnDefinition, error) {
	switch agg.Type {
	case AggregationTypeCount, AggregationTypeSum, AggregationTypeAvg, AggregationTypeMin, AggregationTypeMax:
	default:
		return schema.ColumnDefinition{}, QueryValidationError{Field: fmt.Sprintf("aggregations[%d].type", i), Message: fmt.Sprintf("unknown aggregation type '%s'", agg.Type)}
	}

	if agg.Type == AggregationTypeCount && (agg.Field == "" || agg.Field == "*") {
		return schema.ColumnDefinition{Name: agg.OutputName(), Type: schema.ColumnTypeInteger}, nil
	}

	source, ok := ds.Column(agg.Field)
	if !ok {
		return schema.ColumnDefinition{}, &UnknownColumnError{Column: agg.Field, Stage: "aggregate", Available: ds.ColumnNames()}
	}
	if (agg.Type == AggregationTypeAvg || agg.Type == AggregationTypeSum) && !source.Type.IsNumeric() {
		return schema.ColumnDefinition{}, &TypeMismatchError{Column: agg.Field, Operation: "aggregate " + string(agg.Type), Type: string(source.Type)}
	}
	return schema.ColumnDefinition{Name: agg.OutputName(), Type: aggregateResultType(agg, source.Type)}, nil
}

// resolveOutputs decides the result columns. An include list fixes the order
// and may name aggregation aliases; aliases it omits are appended. Without
// one, grouped queries return the group-by columns followed by the
// aggregations, and plain queries return every dataset column. Exclusions
// are removed from the default list.
func (p *plan) resolveOutputs(
	ds *dataset.Dataset,
	dsl *QueryDSL,
	include, exclude []ProjectionField,
	aggregations map[string]*AggregationConfiguration,
	aggDefs map[string]schema.ColumnDefinition,
) ([]outputColumn, error) {
	var outputs []outputColumn
	seen := make(map[string]struct{})
	add := func(name string) error {
		if _, dup := seen[name]; dup {
			return QueryValidationError{Field: "projection", Message: fmt.Sprintf("duplicate output column '%s'", name)}
		}
		seen[name] = struct{}{}
		if agg, ok := aggregations[name]; ok {
			outputs = append(outputs, outputColumn{def: aggDefs[name], agg: agg})
			return nil
		}
		def, _ := ds.Column(name)
		outputs = append(outputs, outputColumn{def: def})
		return nil
	}

	var names []string
	switch {
	case len(include) > 0:
		for _, f := range include {
			names = append(names, f.Name)
		}
		for _, agg := range dsl.Aggregations {
			if !containsField(include, agg.OutputName()) {
				names = append(names, agg.OutputName())
			}
		}
	case p.grouped:
		names = append(names, dsl.GroupBy...)
		for _, agg := range dsl.Aggregations {
			names = append(names, agg.OutputName())
		}
	default:
		names = ds.ColumnNames()
	}

	for _, f := range exclude {
		if !containsName(names, f.Name) {
			return nil, &UnknownColumnError{Column: f.Name, Stage: "select", Available: names}
		}
	}

	for _, name := range names {
		if containsField(exclude, name) {
			continue
		}
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func containsField(fields []ProjectionField, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (p *plan) columnDefinitions() []schema.ColumnDefinition {
	defs := make([]schema.ColumnDefinition, len(p.outputs))
	for i, out := range p.outputs {
		defs[i] = out.def
	}
	return defs
}

// filterRows returns the rows that pass the compiled filter and every
// predicate, in source order. The returned rows are shared with ds.
func (p *plan) filterRows(ds *dataset.Dataset) ([]schema.Document, error) {
	var rows []schema.Document
	var err error
	ds.Scan(func(_ int, row schema.Document) bool {
		if p.filter != nil {
			var passes bool
			passes, err = p.filter(row)
			if err != nil {
				return false
			}
			if !passes {
				return true
			}
		}
		for _, pred := range p.predicates {
			if !pred(row) {
				return true
			}
		}
		rows = append(rows, row)
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *plan) project(rows []schema.Document) []schema.Document {
	out := make([]schema.Document, len(rows))
	for i, row := range rows {
		projected := make(schema.Document, len(p.outputs))
		for _, col := range p.outputs {
			projected[col.def.Name] = row[col.def.Name]
		}
		out[i] = projected
	}
	return out
}

func (p *plan) aggregate(rows []schema.Document) ([]schema.Document, error) {
	groups := partition(rows, p.groupBy)
	out := make([]schema.Document, 0, len(groups))
	for _, g := range groups {
		row := make(schema.Document, len(p.outputs))
		for _, col := range p.outputs {
			if col.agg == nil {
				if len(g.Rows) == 0 {
					return nil, &EmptyAggregationError{Alias: col.def.Name}
				}
				row[col.def.Name] = g.Rows[0][col.def.Name]
				continue
			}
			value, err := computeAggregate(*col.agg, g.Rows)
			if err != nil {
				return nil, err
			}
			row[col.def.Name] = value
		}
		out = append(out, row)
	}
	return out, nil
}

func (p *plan) paginate(rows []schema.Document) []schema.Document {
	if p.offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[p.offset:]
	if p.limit >= 0 && p.limit < len(rows) {
		rows = rows[:p.limit]
	}
	return rows
}
