package pusher

import (
	"context"
	"testing"

	bybit "crypto_bot/internal/modules/bybit_client/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseCancelsOnlyOrphans(t *testing.T) {
	ex := newFakeExchange()
	ex.active = []bybit.ConditionalOrder{
		{StopOrderID: "known-1", Symbol: "BTCUSD"},
		{StopOrderID: "orphan-1", Symbol: "BTCUSD"},
		{StopOrderID: "orphan-2", Symbol: "BTCUSD"},
	}
	st := newFakeStore()
	st.pushedIDs["known-1"] = struct{}{}

	r := NewReleaseHandler(ex, st)
	require.NoError(t, r.Release(context.Background(), "BTCUSD"))

	assert.ElementsMatch(t, []string{"orphan-1", "orphan-2"}, ex.cancelled)
}

func TestReleaseNothingActive(t *testing.T) {
	ex := newFakeExchange()
	st := newFakeStore()

	r := NewReleaseHandler(ex, st)
	require.NoError(t, r.Release(context.Background(), "BTCUSD"))
	assert.Empty(t, ex.cancelled)
}
