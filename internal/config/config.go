package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default source URLs. Each can be overridden by environment variable,
// which the tests and local mock servers rely on.
const (
	defaultCasesURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/" +
		"csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_confirmed_global.csv"
	defaultDeathsURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/" +
		"csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_deaths_global.csv"
	defaultUSDeathsURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/" +
		"csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_deaths_US.csv"
	defaultVaccinationsURL = "https://raw.githubusercontent.com/owid/covid-19-data/master/" +
		"public/data/vaccinations/vaccinations.csv"
	defaultExcessDeathsURL = "https://raw.githubusercontent.com/TheEconomist/covid-19-excess-deaths-tracker/" +
		"master/output-data/excess-deaths/all_weekly_excess_deaths.csv"
)

//go:embed watchlist.yaml
var defaultWatchlistYAML []byte

// Config holds all service settings, populated from environment variables
// with an optional YAML watch-list file.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// RefreshInterval of zero means a single build per run.
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	CasesURL        string
	DeathsURL       string
	USDeathsURL     string
	VaccinationsURL string
	ExcessDeathsURL string

	// Kafka export configuration (feature-flagged via KAFKA_ENABLED /
	// KAFKA_BROKERS).
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// ContinentMinDate excludes the noisy early weeks from the continent
	// breakdown; only dates strictly after it are aggregated.
	ContinentMinDate time.Time
	CFRStartDate     time.Time

	ResolverCacheSize int

	Watchlist Watchlist
}

// Watchlist is the fixed cohort used by the trailing-window incidence table.
type Watchlist struct {
	WindowDays int      `yaml:"window_days"`
	Countries  []string `yaml:"countries"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDurationEnv("REFRESH_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDurationEnv("FETCH_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	if fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	continentMinDate, err := parseDateEnv("CONTINENT_MIN_DATE", "2020-03-01")
	if err != nil {
		return nil, err
	}
	cfrStartDate, err := parseDateEnv("CFR_START_DATE", "2020-02-01")
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	watchlist, err := loadWatchlist(os.Getenv("WATCHLIST_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RefreshInterval: refreshInterval,
		FetchTimeout:    fetchTimeout,

		CasesURL:        envOrDefault("CASES_URL", defaultCasesURL),
		DeathsURL:       envOrDefault("DEATHS_URL", defaultDeathsURL),
		USDeathsURL:     envOrDefault("US_DEATHS_URL", defaultUSDeathsURL),
		VaccinationsURL: envOrDefault("VACCINATIONS_URL", defaultVaccinationsURL),
		ExcessDeathsURL: envOrDefault("EXCESS_DEATHS_URL", defaultExcessDeathsURL),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: brokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "covid-derived-records"),

		ContinentMinDate:  continentMinDate,
		CFRStartDate:      cfrStartDate,
		ResolverCacheSize: parseResolverCacheSize(),

		Watchlist: watchlist,
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// loadWatchlist reads the watch-list YAML from path, falling back to the
// embedded default when path is empty.
func loadWatchlist(path string) (Watchlist, error) {
	data := defaultWatchlistYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Watchlist{}, fmt.Errorf("read watchlist: %w", err)
		}
		data = b
	}

	var w Watchlist
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Watchlist{}, fmt.Errorf("parse watchlist: %w", err)
	}
	if w.WindowDays <= 0 {
		w.WindowDays = 14
	}
	if len(w.Countries) == 0 {
		return Watchlist{}, errors.New("watchlist has no countries")
	}
	return w, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseDateEnv(key, fallback string) (time.Time, error) {
	s := envOrDefault(key, fallback)
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseResolverCacheSize() int {
	if s := os.Getenv("RESOLVER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
