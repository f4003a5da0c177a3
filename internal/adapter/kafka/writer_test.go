package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidboard/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	rec := domain.Record{
		Country:    "Sweden",
		ISO3:       "SWE",
		Continent:  "Europe",
		Date:       time.Date(2020, 4, 26, 0, 0, 0, 0, time.UTC),
		Cumulative: 18640,
		Daily:      463,
	}

	msg, err := serializeToMessage("cases", "2020-04-27T06:00:00Z", rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("cases|SWE|2020-04-26"), msg.Key)
	assert.Contains(t, string(msg.Value), `"country":"Sweden"`)
	assert.Contains(t, string(msg.Value), `"cumulative":18640`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "dataset", msg.Headers[0].Key)
	assert.Equal(t, []byte("cases"), msg.Headers[0].Value)
	assert.Equal(t, "built_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2020-04-27T06:00:00Z"), msg.Headers[1].Value)
}
