package pipeline

import (
	"math"
	"sort"
	"time"

	"covidboard/internal/domain"
)

// DefaultCFRLag is the assumed infection-to-death reporting lag, in days,
// used by the case-fatality table.
const DefaultCFRLag = 20

// Metric names a derived column that summary tables can rank by.
type Metric string

const (
	MetricCumulative      Metric = "cumulative"
	MetricPerMillion      Metric = "per_million"
	MetricDaily           Metric = "daily"
	MetricDailyPerMillion Metric = "daily_per_million"
	MetricAvg7            Metric = "avg7"
	MetricAvg7PerMillion  Metric = "avg7_per_million"
)

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCumulative, MetricPerMillion, MetricDaily, MetricDailyPerMillion, MetricAvg7, MetricAvg7PerMillion:
		return true
	}
	return false
}

func (m Metric) of(r domain.Record) float64 {
	switch m {
	case MetricCumulative:
		return r.Cumulative
	case MetricPerMillion:
		return r.PerMillion
	case MetricDaily:
		return r.Daily
	case MetricDailyPerMillion:
		return r.DailyPerMillion
	case MetricAvg7:
		return r.Avg7
	case MetricAvg7PerMillion:
		return r.Avg7PerMillion
	}
	return 0
}

// TableRow is one line of a ranked summary table.
type TableRow struct {
	Rank           int     `json:"rank"`
	Country        string  `json:"country"`
	Flag           string  `json:"flag,omitempty"`
	Value          float64 `json:"value"`
	ValueLabel     string  `json:"value_label"`
	Secondary      float64 `json:"secondary,omitempty"`
	SecondaryLabel string  `json:"secondary_label,omitempty"`
}

// TopN filters records to the most recent date, sorts descending by the
// primary metric, and returns the first n countries ranked 1..n. The
// secondary metric is carried along as a companion column.
func TopN(records []domain.Record, primary, secondary Metric, n int) []TableRow {
	latest := domain.LatestDate(records)
	snapshot := make([]domain.Record, 0)
	for _, r := range records {
		if r.Date.Equal(latest) {
			snapshot = append(snapshot, r)
		}
	}

	sort.SliceStable(snapshot, func(i, j int) bool {
		return primary.of(snapshot[i]) > primary.of(snapshot[j])
	})
	if n < len(snapshot) {
		snapshot = snapshot[:n]
	}

	rows := make([]TableRow, 0, len(snapshot))
	for i, r := range snapshot {
		rows = append(rows, TableRow{
			Rank:           i + 1,
			Country:        r.Country,
			Flag:           r.Flag,
			Value:          primary.of(r),
			ValueLabel:     domain.FormatMetric(primary.of(r)),
			Secondary:      secondary.of(r),
			SecondaryLabel: domain.FormatMetric(secondary.of(r)),
		})
	}
	return rows
}

// TrailingPerCapita sums an entity's daily values over its most recent
// windowDays observations and normalizes by population per 100,000,
// rounded to three decimals. The second return is false when the entity is
// absent from the records.
func TrailingPerCapita(records []domain.Record, entity string, windowDays int) (float64, bool) {
	series := make([]domain.Record, 0)
	for _, r := range records {
		if r.Country == entity {
			series = append(series, r)
		}
	}
	if len(series) == 0 {
		return 0, false
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	start := len(series) - windowDays
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, r := range series[start:] {
		sum += r.Daily
	}

	pop := series[0].Population
	if pop == 0 {
		return 0, false
	}
	return round3(sum / pop * 100_000), true
}

// WatchlistRanking builds the "last N days per 100,000" cohort table for a
// fixed watch-list of countries, ranked descending. Countries absent from
// the records are skipped.
func WatchlistRanking(records []domain.Record, countries []string, windowDays int) []TableRow {
	rows := make([]TableRow, 0, len(countries))
	for _, country := range countries {
		v, ok := TrailingPerCapita(records, country, windowDays)
		if !ok {
			continue
		}
		rows = append(rows, TableRow{
			Country:    country,
			Value:      v,
			ValueLabel: domain.FormatFixed(v),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// CaseFatality computes per-country case-fatality rates over a window:
// deaths accumulated between start and the latest date, divided by cases
// accumulated between start-lagDays and latest-lagDays, modeling a fixed
// infection-to-death reporting lag. The result is deaths per 100
// infections, rounded to three decimals and ranked descending. Countries
// missing either side of the ratio are excluded, as are those with a
// non-positive case window. With oecdOnly set, non-OECD countries are
// filtered out.
func CaseFatality(deaths, cases []domain.Record, start time.Time, lagDays int, oecdOnly bool) []TableRow {
	latest := domain.LatestDate(deaths)
	startLagged := start.AddDate(0, 0, -lagDays)
	latestLagged := latest.AddDate(0, 0, -lagDays)

	deathsAt := cumulativeByCountryDate(deaths)
	casesAt := cumulativeByCountryDate(cases)
	oecd := make(map[string]bool)
	flags := make(map[string]string)
	for _, r := range deaths {
		oecd[r.Country] = r.OECD
		flags[r.Country] = r.Flag
	}

	countries := make([]string, 0, len(deathsAt))
	for c := range deathsAt {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	rows := make([]TableRow, 0, len(countries))
	for _, country := range countries {
		if oecdOnly && !oecd[country] {
			continue
		}
		dStart, ok1 := deathsAt[country][start]
		dEnd, ok2 := deathsAt[country][latest]
		cStart, ok3 := casesAt[country][startLagged]
		cEnd, ok4 := casesAt[country][latestLagged]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		infections := cEnd - cStart
		if infections <= 0 {
			continue
		}
		rate := round3((dEnd - dStart) / infections * 100)
		rows = append(rows, TableRow{
			Country:    country,
			Flag:       flags[country],
			Value:      rate,
			ValueLabel: domain.FormatFixed(rate),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func cumulativeByCountryDate(records []domain.Record) map[string]map[time.Time]float64 {
	out := make(map[string]map[time.Time]float64)
	for _, r := range records {
		byDate, ok := out[r.Country]
		if !ok {
			byDate = make(map[time.Time]float64)
			out[r.Country] = byDate
		}
		byDate[r.Date] = r.Cumulative
	}
	return out
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
