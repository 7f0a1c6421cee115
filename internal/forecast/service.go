package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrRecordOutOfScope is returned when an ingested record's market is not
// part of the target scope.
var ErrRecordOutOfScope = errors.New("forecast: record outside scope")

// MetricsRecorder receives service instrumentation.
type MetricsRecorder interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	ObservePivot(measure string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(string)                    {}
func (noopMetrics) CacheMiss(string)                   {}
func (noopMetrics) ObservePivot(string, time.Duration) {}

// Service loads records through the cache and runs pivots, rollups and
// guidance evaluation over them. Computed results are never cached.
type Service struct {
	repo       Repository
	cache      *Cache
	registry   *Registry
	guidance   *GuidanceCatalog
	aggregator *Aggregator
	metrics    MetricsRecorder
	logger     *slog.Logger
	loads      singleflight.Group
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithRegistry replaces the default dimension registry.
func WithRegistry(reg *Registry) ServiceOption {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithMetrics attaches an instrumentation sink.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the repository, cache and catalogs.
func NewService(repo Repository, cache *Cache, guidance *GuidanceCatalog, aggregator *Aggregator, opts ...ServiceOption) *Service {
	if aggregator == nil {
		aggregator = NewAggregator()
	}
	s := &Service{
		repo:       repo,
		cache:      cache,
		registry:   DefaultRegistry(),
		guidance:   guidance,
		aggregator: aggregator,
		metrics:    noopMetrics{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions lists the registry.
func (s *Service) Dimensions() []Dimension {
	return s.registry.All()
}

// GuidanceInfo describes a guidance definition for listings.
type GuidanceInfo struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Sublabel    string      `json:"sublabel,omitempty"`
	Calculation Calculation `json:"calculation"`
	Expression  string      `json:"expression"`
	Fields      []string    `json:"fields"`
}

// Info returns the listing view of the definition.
func (d Definition) Info() GuidanceInfo {
	info := GuidanceInfo{ID: d.ID, Label: d.Label, Sublabel: d.Sublabel, Calculation: d.Calculation()}
	if d.Expr != nil {
		info.Expression = d.Expr.String()
		info.Fields = d.Expr.Fields()
	}
	return info
}

// Guidance lists the guidance catalog.
func (s *Service) Guidance() []GuidanceInfo {
	defs := s.guidance.All()
	out := make([]GuidanceInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Info())
	}
	return out
}

// recordLoadTimeout bounds a shared record load once it no longer follows the
// context of the request that started it.
const recordLoadTimeout = 30 * time.Second

// Records returns the raw records of scope, from cache when possible.
// Concurrent loads of the same scope share one repository call. The shared
// load outlives a cancelled caller; each caller only waits on its own ctx.
func (s *Service) Records(ctx context.Context, scope Scope) ([]Record, error) {
	scope = scope.Normalize()
	key, err := s.cache.BuildKey(ctx, "forecast", "records", scope.Token())
	if err != nil {
		return nil, fmt.Errorf("forecast: build cache key: %w", err)
	}
	results := s.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordLoadTimeout)
		defer cancel()
		records, hit, err := s.cache.FetchRecords(loadCtx, key, func(ctx context.Context) ([]Record, error) {
			return s.repo.LoadRecords(ctx, scope)
		})
		if err != nil {
			return nil, err
		}
		if hit {
			s.metrics.CacheHit("records")
		} else {
			s.metrics.CacheMiss("records")
		}
		return records, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("forecast: load records: %w", ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, fmt.Errorf("forecast: load records: %w", res.Err)
		}
		return res.Val.([]Record), nil
	}
}

// Pivot aggregates the scope's records for q.
func (s *Service) Pivot(ctx context.Context, scope Scope, q PivotQuery) (PivotResult, error) {
	records, err := s.Records(ctx, scope)
	if err != nil {
		return PivotResult{}, err
	}
	return s.pivot(records, q)
}

func (s *Service) pivot(records []Record, q PivotQuery) (PivotResult, error) {
	start := time.Now()
	result, dropped, err := s.aggregator.Pivot(s.registry, records, q)
	if err != nil {
		return PivotResult{}, err
	}
	if len(dropped) > 0 {
		s.logger.Debug("pivot dropped unknown dimensions", slog.Any("dimensions", dropped))
	}
	s.metrics.ObservePivot(q.Measure, time.Since(start))
	return result, nil
}

// DashboardTile is one pivot of a dashboard.
type DashboardTile struct {
	ID    string     `json:"id" validate:"required,max=64"`
	Query PivotQuery `json:"query"`
}

// DashboardTileResult pairs a tile id with its pivot.
type DashboardTileResult struct {
	ID     string      `json:"id"`
	Result PivotResult `json:"result"`
}

// Dashboard computes every tile concurrently over one record load.
func (s *Service) Dashboard(ctx context.Context, scope Scope, tiles []DashboardTile) ([]DashboardTileResult, error) {
	records, err := s.Records(ctx, scope)
	if err != nil {
		return nil, err
	}
	results := make([]DashboardTileResult, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, tile := range tiles {
		i, tile := i, tile
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.pivot(records, tile.Query)
			if err != nil {
				return fmt.Errorf("tile %s: %w", tile.ID, err)
			}
			results[i] = DashboardTileResult{ID: tile.ID, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RollupQuery selects the rollup level, record filters and guidance.
type RollupQuery struct {
	Level          Level    `json:"level,omitempty" validate:"omitempty,oneof=variant chain"`
	Filters        []Filter `json:"filters,omitempty"`
	GuidanceIDs    []string `json:"guidance,omitempty"`
	IncludeMonthly bool     `json:"includeMonthly,omitempty"`
}

// RollupRow is an aggregate with its evaluated guidance keyed by id.
type RollupRow struct {
	Aggregate
	Values map[string]CalculatedValue `json:"values"`
}

// RollupReport is a rollup with guidance evaluated at every level.
type RollupReport struct {
	Level    Level          `json:"level"`
	Guidance []GuidanceInfo `json:"guidance"`
	Items    []RollupRow    `json:"items"`
	Brands   []RollupRow    `json:"brands"`
	Markets  []RollupRow    `json:"markets"`
	Total    RollupRow      `json:"total"`
}

// Rollup builds the hierarchy for scope and evaluates the requested guidance.
func (s *Service) Rollup(ctx context.Context, scope Scope, q RollupQuery) (RollupReport, error) {
	defs, err := s.guidance.Select(q.GuidanceIDs)
	if err != nil {
		return RollupReport{}, err
	}
	records, err := s.Records(ctx, scope)
	if err != nil {
		return RollupReport{}, err
	}
	level := q.Level
	if level == "" {
		level = LevelVariant
	}
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if _, ok := s.registry.Lookup(f.Dimension); ok {
			filters = append(filters, f)
		}
	}
	rollup := BuildRollupBy(ApplyFilters(records, filters), level.ItemKey())
	return BuildReport(rollup, level, defs, q.IncludeMonthly), nil
}

// BuildReport evaluates defs against every node of rollup. Brands and markets
// are ordered by name.
func BuildReport(rollup Rollup, level Level, defs []Definition, includeMonthly bool) RollupReport {
	row := func(agg Aggregate) RollupRow {
		values := make(map[string]CalculatedValue, len(defs))
		for _, def := range defs {
			values[def.ID] = EvaluateAggregate(agg, def, includeMonthly)
		}
		return RollupRow{Aggregate: agg, Values: values}
	}
	report := RollupReport{
		Level:    level,
		Guidance: make([]GuidanceInfo, 0, len(defs)),
		Items:    make([]RollupRow, 0, len(rollup.Items)),
		Brands:   make([]RollupRow, 0, len(rollup.Brands)),
		Markets:  make([]RollupRow, 0, len(rollup.Markets)),
		Total:    row(rollup.Total),
	}
	for _, def := range defs {
		report.Guidance = append(report.Guidance, def.Info())
	}
	for _, item := range rollup.Items {
		report.Items = append(report.Items, row(item))
	}
	for _, name := range sortedKeys(rollup.Brands) {
		report.Brands = append(report.Brands, row(rollup.Brands[name]))
	}
	for _, name := range sortedKeys(rollup.Markets) {
		report.Markets = append(report.Markets, row(rollup.Markets[name]))
	}
	return report
}

// RecordEvaluation is a single-record guidance result. Values are unrounded.
type RecordEvaluation struct {
	GuidanceID string         `json:"guidance"`
	Total      float64        `json:"total"`
	Monthly    *MonthlySeries `json:"monthly,omitempty"`
}

// EvaluateRecord runs one guidance against one record.
func (s *Service) EvaluateRecord(rec Record, guidanceID string, includeMonthly bool) (RecordEvaluation, error) {
	def, ok := s.guidance.Lookup(guidanceID)
	if !ok {
		return RecordEvaluation{}, fmt.Errorf("%w: %s", ErrUnknownGuidance, guidanceID)
	}
	out := RecordEvaluation{GuidanceID: def.ID, Total: Evaluate(rec, def)}
	if includeMonthly {
		if series, ok := EvaluateMonthly(rec, def); ok {
			out.Monthly = &series
		}
	}
	return out, nil
}

// ReplaceRecords stores records as the full content of scope and invalidates
// cached record sets.
func (s *Service) ReplaceRecords(ctx context.Context, scope Scope, records []Record) error {
	scope = scope.Normalize()
	for i, rec := range records {
		if market := rec.String(FieldMarket); !scope.Contains(market) {
			return fmt.Errorf("%w: record %d has market %q", ErrRecordOutOfScope, i, market)
		}
	}
	if err := s.repo.ReplaceRecords(ctx, scope, records); err != nil {
		return err
	}
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return fmt.Errorf("forecast: bump cache: %w", err)
	}
	s.logger.Info("forecast records replaced",
		slog.Int("year", scope.Year),
		slog.Any("markets", scope.Markets),
		slog.Int("records", len(records)),
		slog.Int64("cache_version", ver),
	)
	return nil
}

// InvalidateCache bumps the record cache version.
func (s *Service) InvalidateCache(ctx context.Context) (int64, error) {
	return s.cache.Bump(ctx)
}

// ActiveScopes lists stored plan years with their markets.
func (s *Service) ActiveScopes(ctx context.Context) ([]Scope, error) {
	return s.repo.ActiveScopes(ctx)
}

func sortedKeys(m map[string]Aggregate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
