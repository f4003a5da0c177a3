package pipeline

import (
	"sort"
	"time"

	"covidboard/internal/domain"
)

// ByContinent rolls derived country records up to (continent, date)
// aggregates with each continent's percentage share of the cross-continent
// cumulative and daily sums for that date. Dates at or before minDate are
// excluded; the early weeks of the series are dominated by a single
// continent and distort the breakdown.
//
// When the cross-continent sum for a date is zero the share is reported as
// 0 rather than dividing by zero. Shares for a date otherwise sum to 100
// across continents, within floating-point error.
func ByContinent(records []domain.Record, minDate time.Time) []domain.ContinentShare {
	type key struct {
		continent string
		date      time.Time
	}

	sums := make(map[key]*domain.ContinentShare)
	cumTotals := make(map[time.Time]float64)
	dailyTotals := make(map[time.Time]float64)

	for _, r := range records {
		if !r.Date.After(minDate) {
			continue
		}
		k := key{r.Continent, r.Date}
		agg, ok := sums[k]
		if !ok {
			agg = &domain.ContinentShare{Continent: r.Continent, Date: r.Date}
			sums[k] = agg
		}
		agg.Cumulative += r.Cumulative
		agg.Daily += r.Daily
		cumTotals[r.Date] += r.Cumulative
		dailyTotals[r.Date] += r.Daily
	}

	out := make([]domain.ContinentShare, 0, len(sums))
	for _, agg := range sums {
		agg.PctTotal = share(agg.Cumulative, cumTotals[agg.Date])
		agg.PctDaily = share(agg.Daily, dailyTotals[agg.Date])
		out = append(out, *agg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Continent != out[j].Continent {
			return out[i].Continent < out[j].Continent
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// share returns part/total as a percentage, with 0 as the deterministic
// fallback for a zero total.
func share(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}
