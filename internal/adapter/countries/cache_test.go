package countries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidboard/internal/domain"
)

// countingResolver records how many names reached the inner resolver.
type countingResolver struct {
	table    map[string]domain.CountryMeta
	resolved []string
}

func (c *countingResolver) ResolveAll(_ context.Context, names []string) (map[string]domain.CountryMeta, error) {
	out := make(map[string]domain.CountryMeta, len(names))
	for _, name := range names {
		c.resolved = append(c.resolved, name)
		if meta, ok := c.table[name]; ok {
			out[name] = meta
			continue
		}
		out[name] = domain.CountryMeta{ISO3: domain.NoMatch}
	}
	return out, nil
}

func TestCachedResolverServesHitsLocally(t *testing.T) {
	inner := &countingResolver{table: map[string]domain.CountryMeta{
		"Sweden": {ISO3: "SWE"},
	}}
	cached := NewCachedResolver(inner, 10)
	ctx := context.Background()

	meta, err := cached.ResolveAll(ctx, []string{"Sweden"})
	require.NoError(t, err)
	assert.Equal(t, "SWE", meta["Sweden"].ISO3)
	assert.Len(t, inner.resolved, 1)

	meta, err = cached.ResolveAll(ctx, []string{"Sweden"})
	require.NoError(t, err)
	assert.Equal(t, "SWE", meta["Sweden"].ISO3)
	assert.Len(t, inner.resolved, 1, "second lookup must not reach the inner resolver")
}

func TestCachedResolverDelegatesOnlyMisses(t *testing.T) {
	inner := &countingResolver{table: map[string]domain.CountryMeta{
		"Sweden": {ISO3: "SWE"},
		"Norway": {ISO3: "NOR"},
	}}
	cached := NewCachedResolver(inner, 10)
	ctx := context.Background()

	_, err := cached.ResolveAll(ctx, []string{"Sweden"})
	require.NoError(t, err)

	meta, err := cached.ResolveAll(ctx, []string{"Sweden", "Norway"})
	require.NoError(t, err)
	assert.Len(t, meta, 2)
	assert.Equal(t, []string{"Sweden", "Norway"}, inner.resolved)
}

func TestCachedResolverCachesUnmatched(t *testing.T) {
	inner := &countingResolver{table: map[string]domain.CountryMeta{}}
	cached := NewCachedResolver(inner, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		meta, err := cached.ResolveAll(ctx, []string{"Atlantis"})
		require.NoError(t, err)
		assert.False(t, meta["Atlantis"].Matched())
	}
	assert.Len(t, inner.resolved, 1, "unmatched results are as cacheable as hits")
}

func TestLRUCacheEviction(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", domain.CountryMeta{ISO3: "AAA"})
	cache.put("b", domain.CountryMeta{ISO3: "BBB"})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", domain.CountryMeta{ISO3: "CCC"})

	_, ok = cache.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.get("a")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", domain.CountryMeta{ISO3: "AAA"})
	cache.put("a", domain.CountryMeta{ISO3: "ZZZ"})

	meta, ok := cache.get("a")
	require.True(t, ok)
	assert.Equal(t, "ZZZ", meta.ISO3)
}
