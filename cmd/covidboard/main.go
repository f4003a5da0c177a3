package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"covidboard/internal/adapter/countries"
	"covidboard/internal/adapter/csse"
	"covidboard/internal/adapter/httpapi"
	kafkaadapter "covidboard/internal/adapter/kafka"
	"covidboard/internal/config"
	"covidboard/internal/domain"
	"covidboard/internal/observability"
	"covidboard/internal/pipeline"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "covidboard",
	Short:   "COVID-19 time-series build and serving service",
	Long:    "covidboard normalizes the CSSE, OWID, and excess-mortality source series into derived per-country datasets and serves them over a JSON API.",
	Version: version,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("covidboard", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single build and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
		metrics := observability.NewMetrics()

		p, cleanup, err := buildPipeline(cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ds, err := p.Build(ctx)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}

		fmt.Println("Build complete:")
		fmt.Printf("  Cases:        %d rows\n", len(ds.Cases))
		fmt.Printf("  Deaths:       %d rows\n", len(ds.Deaths))
		fmt.Printf("  Vaccinations: %d rows\n", len(ds.Vaccinations))
		fmt.Printf("  US states:    %d rows\n", len(ds.USA))
		fmt.Printf("  Excess:       %d rows\n", len(ds.Excess))
		fmt.Printf("  Latest date:  %s\n", domain.FormatDate(domain.LatestDate(ds.Cases)))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset API, rebuilding on the refresh interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
		metrics := observability.NewMetrics()

		p, cleanup, err := buildPipeline(cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := httpapi.NewServer(cfg.HTTPAddr, p, cfg, logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		go func() {
			if err := p.Run(ctx, cfg.RefreshInterval); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Fetch the sources and report entity resolution coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

		resolver, err := countries.NewResolver()
		if err != nil {
			return fmt.Errorf("load reference table: %w", err)
		}
		source := csse.NewClient(cfg, logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sets := []struct {
			name  string
			fetch func(context.Context) (domain.WideTable, error)
		}{
			{"cases", source.GlobalCases},
			{"deaths", source.GlobalDeaths},
		}

		exitCode := 0
		for _, set := range sets {
			table, err := set.fetch(ctx)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", set.name, err)
			}
			obs, err := pipeline.GlobalObservations(table)
			if err != nil {
				return fmt.Errorf("normalize %s: %w", set.name, err)
			}

			unmatched, total, err := resolutionGaps(ctx, resolver, obs)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", set.name, err)
			}

			fmt.Printf("%s: %d/%d entities resolved\n", set.name, total-len(unmatched), total)
			for _, name := range unmatched {
				fmt.Printf("  unmatched: %s\n", name)
				exitCode = 1
			}
		}

		if exitCode != 0 {
			return fmt.Errorf("unresolved entities present; extend the reference table or alias map")
		}
		fmt.Println("All entities resolved.")
		return nil
	},
}

// buildPipeline wires the resolver, source client, and optional Kafka
// exporter into a pipeline. The returned cleanup closes the exporter.
func buildPipeline(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	base, err := countries.NewResolver()
	if err != nil {
		return nil, nil, fmt.Errorf("load reference table: %w", err)
	}
	resolver := countries.NewCachedResolver(base, cfg.ResolverCacheSize)

	statePops, err := countries.StatePopulations()
	if err != nil {
		return nil, nil, fmt.Errorf("load state populations: %w", err)
	}

	source := csse.NewClient(cfg, logger)

	// Kafka export is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var exporter pipeline.Exporter
	cleanup := func() {}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		exporter = writer
		cleanup = func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		logger.Info("kafka export enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka export disabled")
	}

	p := pipeline.New(source, resolver, statePops, exporter, logger, metrics, cfg.ContinentMinDate)
	return p, cleanup, nil
}

// resolutionGaps resolves every distinct entity in the observations and
// returns the unmatched names sorted, with the total distinct count.
func resolutionGaps(ctx context.Context, resolver domain.Resolver, obs []domain.Observation) ([]string, int, error) {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, o := range obs {
		if _, ok := seen[o.Entity]; ok {
			continue
		}
		seen[o.Entity] = struct{}{}
		names = append(names, o.Entity)
	}

	meta, err := resolver.ResolveAll(ctx, names)
	if err != nil {
		return nil, 0, err
	}

	unmatched := make([]string, 0)
	for _, name := range names {
		if m, ok := meta[name]; !ok || !m.Matched() {
			unmatched = append(unmatched, name)
		}
	}
	sort.Strings(unmatched)
	return unmatched, len(names), nil
}
