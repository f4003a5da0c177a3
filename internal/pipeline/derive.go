package pipeline

import (
	"sort"

	"covidboard/internal/domain"
)

const perMillion = 1_000_000

// Derive computes the full set of derived metrics from normalized
// observations: per-capita rates, clamped daily first differences, and the
// trailing 7-day average, each with a per-million variant and a formatted
// label. Entities without a metadata match are skipped entirely; rows that
// end up with an undefined column are removed by an explicit drop pass.
//
// Output is sorted by (country, date). An entity with a single observation
// yields no rows, and an entity without a population figure yields no rows.
func Derive(obs []domain.Observation, meta map[string]domain.CountryMeta) []domain.Record {
	byEntity := make(map[string][]domain.Observation)
	for _, o := range obs {
		byEntity[o.Entity] = append(byEntity[o.Entity], o)
	}

	entities := make([]string, 0, len(byEntity))
	for entity := range byEntity {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	out := make([]domain.Record, 0, len(obs))
	for _, entity := range entities {
		m, ok := meta[entity]
		if !ok || !m.Matched() {
			continue
		}
		series := byEntity[entity]
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		out = append(out, deriveEntity(entity, series, m)...)
	}
	return out
}

// scratchRow carries a record through derivation together with flags for
// columns that are undefined rather than zero.
type scratchRow struct {
	rec      domain.Record
	hasDaily bool
	hasPop   bool
}

func deriveEntity(entity string, series []domain.Observation, m domain.CountryMeta) []domain.Record {
	rows := make([]scratchRow, 0, len(series))
	dailies := make([]float64, len(series))

	for i, o := range series {
		row := scratchRow{rec: domain.Record{
			Country:    entity,
			Date:       o.Date,
			ISO3:       m.ISO3,
			Continent:  m.Continent,
			Flag:       m.Flag,
			OECD:       m.OECD,
			EUEEA:      m.EUEEA,
			Lat:        m.Lat,
			Lon:        m.Lon,
			Cumulative: o.Value,
		}}

		if m.Population != nil {
			row.hasPop = true
			row.rec.Population = *m.Population
			row.rec.PerMillion = o.Value / *m.Population * perMillion
		}

		if i > 0 {
			d := o.Value - series[i-1].Value
			// Downward revisions of the cumulative source are never
			// reported as negative incidence.
			if d < 0 {
				d = 0
			}
			row.hasDaily = true
			row.rec.Daily = d
			dailies[i] = d
		}

		// Trailing mean over the current and up to 6 preceding daily
		// values. The first row has no daily, so the window starts at
		// index 1 and shrinks near the beginning of the series.
		if i >= 1 {
			start := i - 6
			if start < 1 {
				start = 1
			}
			sum := 0.0
			for _, v := range dailies[start : i+1] {
				sum += v
			}
			row.rec.Avg7 = sum / float64(i+1-start)
		}

		if row.hasPop {
			row.rec.DailyPerMillion = row.rec.Daily / *m.Population * perMillion
			row.rec.Avg7PerMillion = row.rec.Avg7 / *m.Population * perMillion
		}

		rows = append(rows, row)
	}

	kept := dropIncomplete(rows)
	for i := range kept {
		attachLabels(&kept[i])
	}
	return kept
}

// dropIncomplete is the named cleaning pass that removes rows with any
// undefined derived column: each entity's first date (no prior day to diff
// against) and every row of an entity without a population figure.
func dropIncomplete(rows []scratchRow) []domain.Record {
	out := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		if !r.hasDaily || !r.hasPop {
			continue
		}
		out = append(out, r.rec)
	}
	return out
}

func attachLabels(r *domain.Record) {
	r.DateLabel = domain.FormatDate(r.Date)
	r.CumulativeLabel = domain.FormatMetric(r.Cumulative)
	r.PerMillionLabel = domain.FormatMetric(r.PerMillion)
	r.DailyLabel = domain.FormatMetric(r.Daily)
	r.DailyPerMillionLabel = domain.FormatMetric(r.DailyPerMillion)
	r.Avg7Label = domain.FormatMetric(r.Avg7)
	r.Avg7PerMillionLabel = domain.FormatMetric(r.Avg7PerMillion)
}
