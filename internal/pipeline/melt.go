package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"covidboard/internal/domain"
)

// sourceDateLayout is the CSSE date-column format: month/day/2-digit year,
// no zero padding, e.g. "3/15/20".
const sourceDateLayout = "1/2/06"

// Melt reshapes a wide date-columned table into long (entity, date, value)
// observations. Columns from firstDateCol onward are parsed as dates; rows
// for the same (entity, date) are summed, collapsing the sub-regional rows
// some countries report. Output order is unspecified; callers sort where
// order matters.
func Melt(table domain.WideTable, entityCol string, firstDateCol int) ([]domain.Observation, error) {
	entityIdx := -1
	for i, col := range table.Columns {
		if col == entityCol {
			entityIdx = i
			break
		}
	}
	if entityIdx < 0 {
		return nil, fmt.Errorf("entity column %q not found", entityCol)
	}
	if firstDateCol >= len(table.Columns) {
		return nil, fmt.Errorf("first date column %d out of range (%d columns)", firstDateCol, len(table.Columns))
	}

	dates := make([]time.Time, 0, len(table.Columns)-firstDateCol)
	for _, col := range table.Columns[firstDateCol:] {
		d, err := time.Parse(sourceDateLayout, col)
		if err != nil {
			return nil, &domain.MalformedDateError{Column: col, Err: err}
		}
		dates = append(dates, d)
	}

	type key struct {
		entity string
		date   time.Time
	}
	sums := make(map[key]float64)

	for _, row := range table.Rows {
		if entityIdx >= len(row) {
			continue
		}
		entity := strings.TrimSpace(row[entityIdx])
		if entity == "" {
			continue
		}
		for j, d := range dates {
			col := firstDateCol + j
			if col >= len(row) {
				break
			}
			sums[key{entity, d}] += parseFloatOrZero(row[col])
		}
	}

	obs := make([]domain.Observation, 0, len(sums))
	for k, v := range sums {
		obs = append(obs, domain.Observation{Entity: k.entity, Date: k.date, Value: v})
	}
	return obs, nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
// Blank and unparseable cells are treated as unreported, not fatal.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// uniqueEntities returns the distinct entity names in a set of observations.
func uniqueEntities(obs []domain.Observation) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, o := range obs {
		if _, ok := seen[o.Entity]; ok {
			continue
		}
		seen[o.Entity] = struct{}{}
		names = append(names, o.Entity)
	}
	return names
}
