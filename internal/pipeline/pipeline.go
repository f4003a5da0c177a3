package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"covidboard/internal/domain"
	"covidboard/internal/observability"
)

// Column layout of the CSSE wide files. The global files carry
// Province/State, Country/Region, Lat, Long before the first date column;
// the US deaths file has a longer identifying prefix (UID through
// Population) with the state name in Province_State.
const (
	globalEntityColumn = "Country/Region"
	globalFirstDateCol = 4

	usEntityColumn = "Province_State"
	usFirstDateCol = 12
)

// GlobalObservations normalizes a global wide table into observations.
func GlobalObservations(table domain.WideTable) ([]domain.Observation, error) {
	return Melt(table, globalEntityColumn, globalFirstDateCol)
}

// USObservations normalizes the per-US-state wide table into observations.
func USObservations(table domain.WideTable) ([]domain.Observation, error) {
	return Melt(table, usEntityColumn, usFirstDateCol)
}

// SeriesSource fetches the raw input series. Fetch errors are surfaced
// unmodified; the pipeline makes no retry decisions of its own within a
// build.
type SeriesSource interface {
	GlobalCases(ctx context.Context) (domain.WideTable, error)
	GlobalDeaths(ctx context.Context) (domain.WideTable, error)
	USDeaths(ctx context.Context) (domain.WideTable, error)
	Vaccinations(ctx context.Context) ([]domain.Observation, error)
	ExcessDeaths(ctx context.Context) ([]domain.ExcessRow, error)
}

// Exporter publishes a built dataset to an external sink.
type Exporter interface {
	ExportDataset(ctx context.Context, ds *domain.Dataset) error
}

// Pipeline runs the full normalize-resolve-derive-aggregate build and holds
// the latest dataset snapshot. Each build consumes one complete set of
// source snapshots synchronously; stages hand immutable slices to the next.
type Pipeline struct {
	source           SeriesSource
	resolver         domain.Resolver
	statePops        map[string]float64
	exporter         Exporter // nil disables export
	logger           *slog.Logger
	metrics          *observability.Metrics
	continentMinDate time.Time

	snapshot atomic.Pointer[domain.Dataset]
	ready    atomic.Bool
}

// New creates a Pipeline. Pass a nil exporter to disable sink export.
func New(source SeriesSource, resolver domain.Resolver, statePops map[string]float64, exporter Exporter, logger *slog.Logger, metrics *observability.Metrics, continentMinDate time.Time) *Pipeline {
	return &Pipeline{
		source:           source,
		resolver:         resolver,
		statePops:        statePops,
		exporter:         exporter,
		logger:           logger,
		metrics:          metrics,
		continentMinDate: continentMinDate,
	}
}

// Snapshot returns the most recently built dataset, or nil before the
// first successful build.
func (p *Pipeline) Snapshot() *domain.Dataset {
	return p.snapshot.Load()
}

// CheckReadiness returns nil once at least one build has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no dataset built yet")
	}
	return nil
}

// Build runs one complete synchronous build and stores the result as the
// current snapshot. Export failures are logged and counted but do not fail
// the build; the dataset itself is intact.
func (p *Pipeline) Build(ctx context.Context) (ds *domain.Dataset, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.metrics.BuildsTotal.WithLabelValues(outcome).Inc()
	}()

	cases, err := p.buildGlobal(ctx, "cases", p.source.GlobalCases)
	if err != nil {
		return nil, err
	}
	deaths, err := p.buildGlobal(ctx, "deaths", p.source.GlobalDeaths)
	if err != nil {
		return nil, err
	}

	vaccObs, err := p.source.Vaccinations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vaccinations: %w", err)
	}
	p.metrics.RowsNormalized.WithLabelValues("vaccinations").Add(float64(len(vaccObs)))
	vaccinations, err := p.deriveSeries(ctx, "vaccinations", vaccObs)
	if err != nil {
		return nil, err
	}

	usTable, err := p.source.USDeaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch us deaths: %w", err)
	}
	usObs, err := USObservations(usTable)
	if err != nil {
		return nil, fmt.Errorf("normalize us deaths: %w", err)
	}
	p.metrics.RowsNormalized.WithLabelValues("usa").Add(float64(len(usObs)))

	excessRaw, err := p.source.ExcessDeaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch excess deaths: %w", err)
	}
	excess, err := ExcessMortality(ctx, excessRaw, p.resolver)
	if err != nil {
		return nil, fmt.Errorf("prepare excess deaths: %w", err)
	}

	ds = &domain.Dataset{
		Cases:           cases,
		Deaths:          deaths,
		Vaccinations:    vaccinations,
		CaseContinents:  ByContinent(cases, p.continentMinDate),
		DeathContinents: ByContinent(deaths, p.continentMinDate),
		Excess:          excess,
		USA:             States(usObs, p.statePops),
		BuiltAt:         domain.Now(),
	}

	p.snapshot.Store(ds)
	p.ready.Store(true)
	p.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastBuildTimestamp.Set(float64(ds.BuiltAt.Unix()))
	p.logger.Info("dataset built",
		"cases_rows", len(ds.Cases),
		"deaths_rows", len(ds.Deaths),
		"vaccination_rows", len(ds.Vaccinations),
		"usa_rows", len(ds.USA),
		"excess_rows", len(ds.Excess),
		"duration", time.Since(start),
	)

	if p.exporter != nil {
		if exportErr := p.exporter.ExportDataset(ctx, ds); exportErr != nil {
			p.logger.Warn("dataset export failed", "error", exportErr)
			p.metrics.ExportErrors.Inc()
		}
	}

	return ds, nil
}

// buildGlobal fetches a global wide table and runs it through the
// normalize-resolve-derive stages.
func (p *Pipeline) buildGlobal(ctx context.Context, name string, fetch func(context.Context) (domain.WideTable, error)) ([]domain.Record, error) {
	table, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	obs, err := GlobalObservations(table)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", name, err)
	}
	p.metrics.RowsNormalized.WithLabelValues(name).Add(float64(len(obs)))
	return p.deriveSeries(ctx, name, obs)
}

// deriveSeries resolves entity metadata in bulk and derives the series.
// Unresolved entities are counted and logged, never fatal.
func (p *Pipeline) deriveSeries(ctx context.Context, name string, obs []domain.Observation) ([]domain.Record, error) {
	names := uniqueEntities(obs)
	meta, err := p.resolver.ResolveAll(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}

	unresolved := 0
	for _, n := range names {
		if m, ok := meta[n]; !ok || !m.Matched() {
			unresolved++
			p.logger.Debug("unresolved entity", "dataset", name, "entity", n)
		}
	}
	p.metrics.UnresolvedEntities.WithLabelValues(name).Add(float64(unresolved))

	records := Derive(obs, meta)
	p.metrics.RowsDerived.WithLabelValues(name).Add(float64(len(records)))
	p.logger.Info("series derived",
		"dataset", name,
		"entities", len(names)-unresolved,
		"unresolved", unresolved,
		"rows", len(records),
	)
	return records, nil
}

// Run executes builds until the context is cancelled. A refresh interval
// of zero or less means a single build; otherwise the pipeline rebuilds on
// the interval, retrying failed builds with capped exponential backoff.
func (p *Pipeline) Run(ctx context.Context, refresh time.Duration) error {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Source fetches dominate build time, so retry backoff starts at a
	// full second rather than sub-second.
	backoff := time.Second
	maxBackoff := 2 * time.Minute

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if _, err := p.Build(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if refresh <= 0 {
				return err
			}
			p.logger.Error("build failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = time.Second

		if refresh <= 0 {
			return nil
		}
		if !sleepWithContext(ctx, refresh) {
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
