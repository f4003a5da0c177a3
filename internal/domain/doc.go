// Package domain models COVID-19 time-series data and the reference
// metadata used to normalize it.
//
// # Data Sources
//
// Cumulative case and death counts come from the Johns Hopkins CSSE
// repository (https://github.com/CSSEGISandData/COVID-19). The global files
// are wide tables: identifying columns (Province/State, Country/Region,
// Lat, Long) followed by one column per calendar date in month/day/2-digit
// year format, e.g. "3/15/20". The per-US-state deaths file shares the
// layout with a longer identifying prefix (UID through Population) and the
// state name in Province_State.
//
// Several countries report multiple sub-regional rows per date (Australia,
// Canada, China, and the overseas territories of others). These are summed
// into a single country total during normalization, so a (country, date)
// pair is unique downstream.
//
// Vaccination counts come from Our World in Data as a long table and the
// weekly excess-mortality series from The Economist's tracker.
//
// # Revisions
//
// Cumulative counts are monotonic in principle but reporting authorities
// occasionally revise totals downward. A first difference of the raw series
// can therefore be negative; daily figures are clamped to zero rather than
// reported as negative incidence.
//
// # Reference Metadata
//
// Country names are resolved against a fixed reference table keyed by
// canonical name with an alias layer for source-specific variants ("US",
// "Korea, South", "Taiwan*", ...). A failed lookup yields the sentinel
// [NoMatch]; unmatched entities are dropped from every aggregate rather
// than aborting a run, since name variants across sources are routine.
// Population may be absent for small territories, in which case no
// per-capita figure can be derived and the rows are excluded after
// derivation.
package domain
