package domain

import "time"

// NoMatch is the ISO3 sentinel the reference table returns for a country
// name it cannot resolve.
const NoMatch = "no match"

// WideTable is a raw source table with one column per calendar date.
// Rows are kept as strings; parsing happens during normalization.
type WideTable struct {
	Columns []string
	Rows    [][]string
}

// Observation is one (entity, date) fact from a cumulative series after
// normalization. Value is the cumulative count reported up to Date.
type Observation struct {
	Entity string
	Date   time.Time
	Value  float64
}

// CountryMeta is the reference metadata attached to a resolved country.
// Population is nil when the reference table has no figure; per-capita
// metrics cannot be derived for such countries.
type CountryMeta struct {
	ISO3       string
	Continent  string
	Flag       string
	OECD       bool
	EUEEA      bool
	Population *float64
	Lat        float64
	Lon        float64
}

// Matched reports whether the metadata belongs to a resolved country.
func (m CountryMeta) Matched() bool {
	return m.ISO3 != "" && m.ISO3 != NoMatch
}

// Record is a fully derived (country, date) row: resolved metadata,
// cumulative and daily counts, per-capita rates, the trailing 7-day
// average, and pre-formatted label strings for chart hovers and tables.
type Record struct {
	Country    string    `json:"country"`
	Date       time.Time `json:"date"`
	ISO3       string    `json:"iso3"`
	Continent  string    `json:"continent"`
	Flag       string    `json:"flag,omitempty"`
	OECD       bool      `json:"oecd"`
	EUEEA      bool      `json:"eu_eea"`
	Population float64   `json:"population"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`

	Cumulative      float64 `json:"cumulative"`
	PerMillion      float64 `json:"per_million"`
	Daily           float64 `json:"daily"`
	DailyPerMillion float64 `json:"daily_per_million"`
	Avg7            float64 `json:"avg7"`
	Avg7PerMillion  float64 `json:"avg7_per_million"`

	DateLabel            string `json:"date_label"`
	CumulativeLabel      string `json:"cumulative_label"`
	PerMillionLabel      string `json:"per_million_label"`
	DailyLabel           string `json:"daily_label"`
	DailyPerMillionLabel string `json:"daily_per_million_label"`
	Avg7Label            string `json:"avg7_label"`
	Avg7PerMillionLabel  string `json:"avg7_per_million_label"`
}

// ContinentShare is a (continent, date) aggregate: summed cumulative and
// daily counts plus the continent's percentage share of the cross-continent
// totals for that date.
type ContinentShare struct {
	Continent  string    `json:"continent"`
	Date       time.Time `json:"date"`
	Cumulative float64   `json:"cumulative"`
	Daily      float64   `json:"daily"`
	PctTotal   float64   `json:"pct_total"`
	PctDaily   float64   `json:"pct_daily"`
}

// StateRecord is a per-US-state deaths row with population-normalized
// figures and per-date dense ranks.
type StateRecord struct {
	State       string    `json:"state"`
	Date        time.Time `json:"date"`
	Deaths      float64   `json:"deaths"`
	Per100k     float64   `json:"per_100k"`
	RankTotal   int       `json:"rank_total"`
	RankPer100k int       `json:"rank_per_100k"`

	DateLabel    string `json:"date_label"`
	DeathsLabel  string `json:"deaths_label"`
	Per100kLabel string `json:"per_100k_label"`
}

// ExcessRow is one country-week of the excess-mortality series.
// PctChange is the excess over expected deaths as a percentage.
type ExcessRow struct {
	Country        string  `json:"country"`
	Region         string  `json:"region"`
	ISO3           string  `json:"iso3"`
	Flag           string  `json:"flag,omitempty"`
	Year           int     `json:"year"`
	Week           int     `json:"week"`
	TotalDeaths    float64 `json:"total_deaths"`
	ExpectedDeaths float64 `json:"expected_deaths"`
	ExcessDeaths   float64 `json:"excess_deaths"`
	PctChange      float64 `json:"pct_change"`
}

// Dataset bundles every series produced by one pipeline build. It is
// immutable once built; a new build replaces the whole snapshot.
type Dataset struct {
	Cases        []Record `json:"cases"`
	Deaths       []Record `json:"deaths"`
	Vaccinations []Record `json:"vaccinations"`

	CaseContinents  []ContinentShare `json:"case_continents"`
	DeathContinents []ContinentShare `json:"death_continents"`

	Excess []ExcessRow   `json:"excess"`
	USA    []StateRecord `json:"usa"`

	BuiltAt time.Time `json:"built_at"`
}

// LatestDate returns the most recent date in a record slice, or the zero
// time for an empty slice.
func LatestDate(records []Record) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest
}
