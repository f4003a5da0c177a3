package pipeline

import (
	"context"
	"sort"

	"covidboard/internal/domain"
)

// subNationalSources lists the countries whose excess-mortality series
// carries regional sub-rows alongside the national total. Only the national
// row (region equal to the country) is kept for these.
var subNationalSources = map[string]struct{}{
	"United States": {},
	"Spain":         {},
	"Britain":       {},
	"France":        {},
	"Italy":         {},
	"Chile":         {},
}

// ExcessMortality cleans the weekly excess-deaths series: regional sub-rows
// are dropped, "Britain" is renamed to match the reference table, the
// percentage-change column is scaled from decimal to percent, and ISO3 code
// and flag are attached. Countries the resolver cannot match are excluded.
// Output is sorted by (country, year, week).
func ExcessMortality(ctx context.Context, rows []domain.ExcessRow, resolver domain.Resolver) ([]domain.ExcessRow, error) {
	cleaned := make([]domain.ExcessRow, 0, len(rows))
	for _, r := range rows {
		if _, ok := subNationalSources[r.Country]; ok && r.Region != r.Country {
			continue
		}
		if r.Country == "Britain" {
			r.Country = "United Kingdom"
			r.Region = "United Kingdom"
		}
		r.PctChange *= 100
		cleaned = append(cleaned, r)
	}

	names := make([]string, 0, len(cleaned))
	seen := make(map[string]struct{})
	for _, r := range cleaned {
		if _, ok := seen[r.Country]; ok {
			continue
		}
		seen[r.Country] = struct{}{}
		names = append(names, r.Country)
	}

	meta, err := resolver.ResolveAll(ctx, names)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ExcessRow, 0, len(cleaned))
	for _, r := range cleaned {
		m := meta[r.Country]
		if !m.Matched() {
			continue
		}
		r.ISO3 = m.ISO3
		r.Flag = m.Flag
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out, nil
}
