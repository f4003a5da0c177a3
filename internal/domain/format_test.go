package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"decimal kept", 1234.5, "1,234.50"},
		{"whole number drops .00", 1234.00, "1,234"},
		{"small decimal", 0.5, "0.50"},
		{"zero", 0, "0"},
		{"millions", 1234567.89, "1,234,567.89"},
		{"three digits ungrouped", 999, "999"},
		{"four digits grouped", 1000, "1,000"},
		{"negative", -1234.5, "-1,234.50"},
		{"negative whole", -1000, "-1,000"},
		{"rounds to two places", 12.345, "12.35"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMetric(tt.input))
		})
	}
}

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"keeps .00", 1234.00, "1,234.00"},
		{"decimal", 56.789, "56.79"},
		{"zero", 0, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatFixed(tt.input))
		})
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"millions", 1234567, "1,234,567"},
		{"hundreds", 421, "421"},
		{"zero", 0, "0"},
		{"negative", -5000, "-5,000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatCount(tt.input))
		})
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2021, time.March, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Mar 05, 2021", FormatDate(d))
}

func TestCountryMeta_Matched(t *testing.T) {
	assert.True(t, CountryMeta{ISO3: "SWE"}.Matched())
	assert.False(t, CountryMeta{ISO3: NoMatch}.Matched())
	assert.False(t, CountryMeta{}.Matched())
}

func TestLatestDate(t *testing.T) {
	d1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)

	records := []Record{{Date: d2}, {Date: d1}}
	assert.Equal(t, d2, LatestDate(records))
	assert.True(t, LatestDate(nil).IsZero())
}

func TestSetClock(t *testing.T) {
	fixed := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	assert.Equal(t, fixed, Now())
}
