package pipeline

import (
	"sort"
	"time"

	"covidboard/internal/domain"
)

// States builds the per-US-state deaths dataset: joins each state's
// population, derives deaths per 100,000, and assigns per-date dense ranks
// (descending) by both total deaths and the per-capita figure. States
// missing from the population table are dropped. Output is sorted by
// (date, state).
func States(obs []domain.Observation, populations map[string]float64) []domain.StateRecord {
	byDate := make(map[time.Time][]domain.StateRecord)
	for _, o := range obs {
		pop, ok := populations[o.Entity]
		if !ok || pop == 0 {
			continue
		}
		rec := domain.StateRecord{
			State:   o.Entity,
			Date:    o.Date,
			Deaths:  o.Value,
			Per100k: o.Value / pop * 100_000,
		}
		rec.DateLabel = domain.FormatDate(o.Date)
		rec.DeathsLabel = domain.FormatCount(o.Value)
		rec.Per100kLabel = domain.FormatFixed(rec.Per100k)
		byDate[o.Date] = append(byDate[o.Date], rec)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]domain.StateRecord, 0, len(obs))
	for _, d := range dates {
		recs := byDate[d]

		totalRank := denseRanks(recs, func(r domain.StateRecord) float64 { return r.Deaths })
		perCapRank := denseRanks(recs, func(r domain.StateRecord) float64 { return r.Per100k })
		for i := range recs {
			recs[i].RankTotal = totalRank[recs[i].Deaths]
			recs[i].RankPer100k = perCapRank[recs[i].Per100k]
		}

		sort.Slice(recs, func(i, j int) bool { return recs[i].State < recs[j].State })
		out = append(out, recs...)
	}
	return out
}

// denseRanks maps each distinct value to its dense rank, descending: the
// largest value ranks 1 and ties share a rank with no gaps after them.
func denseRanks(recs []domain.StateRecord, value func(domain.StateRecord) float64) map[float64]int {
	distinct := make(map[float64]struct{})
	for _, r := range recs {
		distinct[value(r)] = struct{}{}
	}
	values := make([]float64, 0, len(distinct))
	for v := range distinct {
		values = append(values, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	ranks := make(map[float64]int, len(values))
	for i, v := range values {
		ranks[v] = i + 1
	}
	return ranks
}
