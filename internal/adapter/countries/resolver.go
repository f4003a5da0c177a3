// Package countries implements the reference-metadata resolver over an
// embedded country table with an alias layer for source-specific name
// variants.
package countries

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"covidboard/internal/domain"
)

//go:embed countries.csv
var referenceCSV []byte

// aliases maps source name variants to canonical reference names. The CSSE
// files use short or punctuated forms for several countries; the excess
// series uses "Britain".
var aliases = map[string]string{
	"US":                  "United States",
	"Korea, South":        "South Korea",
	"Taiwan*":             "Taiwan",
	"Burma":               "Myanmar",
	"Czechia":             "Czech Republic",
	"Congo (Kinshasa)":    "Democratic Republic of the Congo",
	"Congo (Brazzaville)": "Republic of the Congo",
	"Cote d'Ivoire":       "Ivory Coast",
	"Britain":             "United Kingdom",
	"Holy See":            "Vatican City",
	"Russian Federation":  "Russia",
	"Viet Nam":            "Vietnam",
}

// Resolver resolves country names against the embedded reference table.
// It is pure: the same name always yields the same result.
type Resolver struct {
	byName map[string]domain.CountryMeta
}

// NewResolver parses the embedded reference table.
func NewResolver() (*Resolver, error) {
	reader := csv.NewReader(bytes.NewReader(referenceCSV))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse reference table: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("reference table is empty")
	}

	byName := make(map[string]domain.CountryMeta, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 9 {
			return nil, fmt.Errorf("reference row for %q has %d columns", row[0], len(row))
		}
		meta := domain.CountryMeta{
			ISO3:      row[1],
			OECD:      row[3] == "true",
			EUEEA:     row[4] == "true",
			Continent: row[5],
			Flag:      row[6],
		}
		if row[2] != "" {
			pop, err := strconv.ParseFloat(row[2], 64)
			if err != nil {
				return nil, fmt.Errorf("reference population for %q: %w", row[0], err)
			}
			meta.Population = &pop
		}
		meta.Lat, _ = strconv.ParseFloat(row[7], 64)
		meta.Lon, _ = strconv.ParseFloat(row[8], 64)

		byName[strings.ToLower(row[0])] = meta
	}

	return &Resolver{byName: byName}, nil
}

// ResolveAll maps each name to its metadata. Unmatched names yield the
// NoMatch sentinel rather than an error, so callers can filter them
// without aborting a batch.
func (r *Resolver) ResolveAll(_ context.Context, names []string) (map[string]domain.CountryMeta, error) {
	out := make(map[string]domain.CountryMeta, len(names))
	for _, name := range names {
		out[name] = r.resolve(name)
	}
	return out, nil
}

func (r *Resolver) resolve(name string) domain.CountryMeta {
	key := strings.TrimSpace(name)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	if meta, ok := r.byName[strings.ToLower(key)]; ok {
		return meta
	}
	return domain.CountryMeta{ISO3: domain.NoMatch}
}
