// Package csse fetches the raw source CSVs: the Johns Hopkins CSSE wide
// time series, the OWID vaccination series, and The Economist's weekly
// excess-mortality tracker.
package csse

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"covidboard/internal/config"
	"covidboard/internal/domain"
)

// Client fetches and parses the source CSVs. Fetch failures are returned
// unmodified; retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	casesURL        string
	deathsURL       string
	usDeathsURL     string
	vaccinationsURL string
	excessURL       string
}

// NewClient creates a source client with the configured URLs and fetch
// timeout.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		logger:          logger,
		casesURL:        cfg.CasesURL,
		deathsURL:       cfg.DeathsURL,
		usDeathsURL:     cfg.USDeathsURL,
		vaccinationsURL: cfg.VaccinationsURL,
		excessURL:       cfg.ExcessDeathsURL,
	}
}

// GlobalCases fetches the wide cumulative-cases table.
func (c *Client) GlobalCases(ctx context.Context) (domain.WideTable, error) {
	return c.fetchWide(ctx, c.casesURL)
}

// GlobalDeaths fetches the wide cumulative-deaths table.
func (c *Client) GlobalDeaths(ctx context.Context) (domain.WideTable, error) {
	return c.fetchWide(ctx, c.deathsURL)
}

// USDeaths fetches the wide per-US-state cumulative-deaths table.
func (c *Client) USDeaths(ctx context.Context) (domain.WideTable, error) {
	return c.fetchWide(ctx, c.usDeathsURL)
}

// Vaccinations fetches the long-form vaccination series as cumulative
// observations per (country, date). Rows without a cumulative total are
// reporting gaps and are skipped.
func (c *Client) Vaccinations(ctx context.Context) ([]domain.Observation, error) {
	rows, err := c.fetchCSV(ctx, c.vaccinationsURL)
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("vaccination series is empty")
	}

	idx := columnIndex(rows[0])
	locCol, ok1 := idx["location"]
	dateCol, ok2 := idx["date"]
	totalCol, ok3 := idx["total_vaccinations"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("vaccination series missing expected columns, got %v", rows[0])
	}

	obs := make([]domain.Observation, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if totalCol >= len(row) || strings.TrimSpace(row[totalCol]) == "" {
			continue
		}
		value, err := strconv.ParseFloat(row[totalCol], 64)
		if err != nil {
			continue
		}
		date, err := time.Parse("2006-01-02", row[dateCol])
		if err != nil {
			return nil, fmt.Errorf("vaccination row date %q: %w", row[dateCol], err)
		}
		obs = append(obs, domain.Observation{
			Entity: row[locCol],
			Date:   date,
			Value:  value,
		})
	}
	return obs, nil
}

// ExcessDeaths fetches the weekly excess-mortality series.
func (c *Client) ExcessDeaths(ctx context.Context) ([]domain.ExcessRow, error) {
	rows, err := c.fetchCSV(ctx, c.excessURL)
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("excess-mortality series is empty")
	}

	idx := columnIndex(rows[0])
	required := []string{"country", "region", "year", "week", "total_deaths", "expected_deaths", "excess_deaths", "excess_deaths_pct_change"}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("excess-mortality series missing column %q", col)
		}
	}

	out := make([]domain.ExcessRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		year, err := strconv.Atoi(cell(row, idx["year"]))
		if err != nil {
			continue
		}
		week, err := strconv.Atoi(cell(row, idx["week"]))
		if err != nil {
			continue
		}
		out = append(out, domain.ExcessRow{
			Country:        cell(row, idx["country"]),
			Region:         cell(row, idx["region"]),
			Year:           year,
			Week:           week,
			TotalDeaths:    floatCell(row, idx["total_deaths"]),
			ExpectedDeaths: floatCell(row, idx["expected_deaths"]),
			ExcessDeaths:   floatCell(row, idx["excess_deaths"]),
			PctChange:      floatCell(row, idx["excess_deaths_pct_change"]),
		})
	}
	return out, nil
}

func (c *Client) fetchWide(ctx context.Context, url string) (domain.WideTable, error) {
	rows, err := c.fetchCSV(ctx, url)
	if err != nil {
		return domain.WideTable{}, err
	}
	if len(rows) < 1 {
		return domain.WideTable{}, fmt.Errorf("table at %s is empty", url)
	}
	return domain.WideTable{Columns: rows[0], Rows: rows[1:]}, nil
}

func (c *Client) fetchCSV(ctx context.Context, url string) ([][]string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", url, resp.StatusCode, body)
	}

	reader := csv.NewReader(resp.Body)
	// Source rows occasionally vary in width; length checks happen in
	// the normalizer.
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	c.logger.Debug("source fetched", "url", url, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	return idx
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func floatCell(row []string, i int) float64 {
	v, err := strconv.ParseFloat(cell(row, i), 64)
	if err != nil {
		return 0
	}
	return v
}
