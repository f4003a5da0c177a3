package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidboard/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func seriesFor(entity string, start time.Time, values ...float64) []domain.Observation {
	obs := make([]domain.Observation, 0, len(values))
	for i, v := range values {
		obs = append(obs, domain.Observation{Entity: entity, Date: start.AddDate(0, 0, i), Value: v})
	}
	return obs
}

func TestDerive(t *testing.T) {
	start := day(2020, 3, 1)
	meta := map[string]domain.CountryMeta{
		"Sweden": {ISO3: "SWE", Continent: "Europe", Population: floatPtr(10_000_000)},
	}

	records := Derive(seriesFor("Sweden", start, 100, 150, 140, 200), meta)

	// First date dropped: no prior day to diff against.
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "SWE", r.ISO3)
		assert.Equal(t, "Europe", r.Continent)
	}

	assert.Equal(t, day(2020, 3, 2), records[0].Date)
	assert.Equal(t, 150.0, records[0].Cumulative)
	assert.Equal(t, 50.0, records[0].Daily)
	assert.InDelta(t, 15.0, records[0].PerMillion, 1e-9)
	assert.InDelta(t, 5.0, records[0].DailyPerMillion, 1e-9)

	// Day 3 revises the cumulative downward; daily clamps to zero.
	assert.Equal(t, 140.0, records[1].Cumulative)
	assert.Zero(t, records[1].Daily)

	assert.Equal(t, 60.0, records[2].Daily)
	assert.InDelta(t, (50.0+0+60)/3, records[2].Avg7, 1e-9)
}

func TestDeriveRollingSteadyState(t *testing.T) {
	// A constant daily increment must produce a rolling mean equal to the
	// increment from the first kept row onward.
	start := day(2020, 3, 1)
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(100 + 7*i)
	}
	meta := map[string]domain.CountryMeta{
		"Norway": {ISO3: "NOR", Continent: "Europe", Population: floatPtr(5_000_000)},
	}

	records := Derive(seriesFor("Norway", start, values...), meta)
	require.Len(t, records, 11)
	for _, r := range records {
		assert.InDelta(t, 7.0, r.Avg7, 1e-9, "date %s", r.Date)
	}
}

func TestDeriveRollingWindowShrinks(t *testing.T) {
	start := day(2020, 3, 1)
	meta := map[string]domain.CountryMeta{
		"Norway": {ISO3: "NOR", Continent: "Europe", Population: floatPtr(5_000_000)},
	}

	// Dailies: 10, 20, 30, ...; after ten rows the window holds exactly
	// seven dailies.
	values := []float64{0, 10, 30, 60, 100, 150, 210, 280, 360, 450, 550}
	records := Derive(seriesFor("Norway", start, values...), meta)
	require.Len(t, records, 10)

	assert.InDelta(t, 10.0, records[0].Avg7, 1e-9)
	assert.InDelta(t, 15.0, records[1].Avg7, 1e-9)
	// Row 10 windows over dailies 40..100.
	assert.InDelta(t, 70.0, records[9].Avg7, 1e-9)
}

func TestDeriveDropsUnusableEntities(t *testing.T) {
	start := day(2020, 3, 1)

	t.Run("unmatched entity yields no rows", func(t *testing.T) {
		meta := map[string]domain.CountryMeta{
			"MS Zaandam": {ISO3: domain.NoMatch},
		}
		records := Derive(seriesFor("MS Zaandam", start, 1, 2, 3), meta)
		assert.Empty(t, records)
	})

	t.Run("entity absent from metadata yields no rows", func(t *testing.T) {
		records := Derive(seriesFor("Atlantis", start, 1, 2, 3), map[string]domain.CountryMeta{})
		assert.Empty(t, records)
	})

	t.Run("entity without population yields no rows", func(t *testing.T) {
		meta := map[string]domain.CountryMeta{
			"Vatican City": {ISO3: "VAT", Continent: "Europe"},
		}
		records := Derive(seriesFor("Vatican City", start, 1, 2, 3), meta)
		assert.Empty(t, records)
	})

	t.Run("single observation yields no rows", func(t *testing.T) {
		meta := map[string]domain.CountryMeta{
			"Sweden": {ISO3: "SWE", Continent: "Europe", Population: floatPtr(10_000_000)},
		}
		records := Derive(seriesFor("Sweden", start, 100), meta)
		assert.Empty(t, records)
	})
}

func TestDeriveLabels(t *testing.T) {
	start := day(2020, 3, 1)
	meta := map[string]domain.CountryMeta{
		"Sweden": {ISO3: "SWE", Continent: "Europe", Population: floatPtr(10_000_000)},
	}

	records := Derive(seriesFor("Sweden", start, 1000, 2234.5), meta)
	require.Len(t, records, 1)
	assert.Equal(t, "Mar 02, 2020", records[0].DateLabel)
	assert.Equal(t, "2,234.50", records[0].CumulativeLabel)
	assert.Equal(t, "1,234.50", records[0].DailyLabel)
}

func TestDeriveSortsByCountryThenDate(t *testing.T) {
	start := day(2020, 3, 1)
	meta := map[string]domain.CountryMeta{
		"Sweden": {ISO3: "SWE", Continent: "Europe", Population: floatPtr(10_000_000)},
		"Norway": {ISO3: "NOR", Continent: "Europe", Population: floatPtr(5_000_000)},
	}

	obs := append(seriesFor("Sweden", start, 1, 2, 3), seriesFor("Norway", start, 1, 2, 3)...)
	records := Derive(obs, meta)
	require.Len(t, records, 4)
	assert.Equal(t, "Norway", records[0].Country)
	assert.Equal(t, "Norway", records[1].Country)
	assert.True(t, records[0].Date.Before(records[1].Date))
	assert.Equal(t, "Sweden", records[2].Country)
}
