package pipeline

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidboard/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMelt(t *testing.T) {
	table := domain.WideTable{
		Columns: []string{"Province/State", "Country/Region", "Lat", "Long", "3/1/20", "3/2/20"},
		Rows: [][]string{
			{"", "Sweden", "60.1", "18.6", "14", "15"},
			{"Greenland", "Denmark", "71.7", "-42.6", "1", "2"},
			{"Faroe Islands", "Denmark", "61.9", "-6.9", "2", "3"},
			{"", "Denmark", "56.3", "9.5", "4", "10"},
		},
	}

	obs, err := Melt(table, "Country/Region", 4)
	require.NoError(t, err)

	sort.Slice(obs, func(i, j int) bool {
		if obs[i].Entity != obs[j].Entity {
			return obs[i].Entity < obs[j].Entity
		}
		return obs[i].Date.Before(obs[j].Date)
	})

	require.Len(t, obs, 4)
	// Sub-regional rows collapse into one national figure per date.
	assert.Equal(t, domain.Observation{Entity: "Denmark", Date: day(2020, 3, 1), Value: 7}, obs[0])
	assert.Equal(t, domain.Observation{Entity: "Denmark", Date: day(2020, 3, 2), Value: 15}, obs[1])
	assert.Equal(t, domain.Observation{Entity: "Sweden", Date: day(2020, 3, 1), Value: 14}, obs[2])
	assert.Equal(t, domain.Observation{Entity: "Sweden", Date: day(2020, 3, 2), Value: 15}, obs[3])
}

func TestMeltDateParsing(t *testing.T) {
	t.Run("unpadded month day and two-digit year", func(t *testing.T) {
		table := domain.WideTable{
			Columns: []string{"Country/Region", "1/22/20", "12/31/21"},
			Rows:    [][]string{{"Sweden", "0", "1"}},
		}
		obs, err := Melt(table, "Country/Region", 1)
		require.NoError(t, err)

		dates := make([]time.Time, 0, len(obs))
		for _, o := range obs {
			dates = append(dates, o.Date)
		}
		assert.Contains(t, dates, day(2020, 1, 22))
		assert.Contains(t, dates, day(2021, 12, 31))
	})

	t.Run("malformed header fails the batch", func(t *testing.T) {
		table := domain.WideTable{
			Columns: []string{"Country/Region", "3/1/20", "not-a-date"},
			Rows:    [][]string{{"Sweden", "1", "2"}},
		}
		_, err := Melt(table, "Country/Region", 1)
		require.Error(t, err)

		var malformed *domain.MalformedDateError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, "not-a-date", malformed.Column)
	})
}

func TestMeltEdgeCases(t *testing.T) {
	t.Run("missing entity column", func(t *testing.T) {
		table := domain.WideTable{Columns: []string{"Name", "3/1/20"}}
		_, err := Melt(table, "Country/Region", 1)
		assert.ErrorContains(t, err, "entity column")
	})

	t.Run("blank and unparseable cells count as zero", func(t *testing.T) {
		table := domain.WideTable{
			Columns: []string{"Country/Region", "3/1/20", "3/2/20"},
			Rows:    [][]string{{"Sweden", "", "n/a"}},
		}
		obs, err := Melt(table, "Country/Region", 1)
		require.NoError(t, err)
		require.Len(t, obs, 2)
		assert.Zero(t, obs[0].Value)
		assert.Zero(t, obs[1].Value)
	})

	t.Run("short rows are tolerated", func(t *testing.T) {
		table := domain.WideTable{
			Columns: []string{"Country/Region", "3/1/20", "3/2/20"},
			Rows:    [][]string{{"Sweden", "5"}},
		}
		obs, err := Melt(table, "Country/Region", 1)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, 5.0, obs[0].Value)
	})

	t.Run("blank entity rows are skipped", func(t *testing.T) {
		table := domain.WideTable{
			Columns: []string{"Country/Region", "3/1/20"},
			Rows:    [][]string{{"  ", "5"}},
		}
		obs, err := Melt(table, "Country/Region", 1)
		require.NoError(t, err)
		assert.Empty(t, obs)
	})
}
