package domain

import "context"

// Resolver maps source country names to reference metadata.
//
// Implementations must be pure within a run: the same name always yields
// the same result, and unresolved names are reported through the returned
// mapping (ISO3 == NoMatch) rather than as errors, so the merge step can
// filter them without aborting the batch. Bulk resolution avoids repeated
// lookups for the same entity across dates and datasets.
type Resolver interface {
	ResolveAll(ctx context.Context, names []string) (map[string]CountryMeta, error)
}
