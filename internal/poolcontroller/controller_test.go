package poolcontroller_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func samplePool(address string) types.PoolMetadata {
	return types.PoolMetadata{
		Address: address,
		DexType: types.DexV3,
		Token0:  "0xaaa",
		Token1:  "0xbbb",
		Weight:  2,
	}
}

func TestTrackIsIdempotent(t *testing.T) {
	c := poolcontroller.New()
	first := c.Track(1, samplePool("0xPool"))
	second := c.Track(1, samplePool("0xPool"))
	require.Same(t, first, second)
	require.Equal(t, 1, c.Len())
	require.Equal(t, types.TierNormal, first.Tier)
}

func TestGetPoolsForRefreshOnlyReturnsDue(t *testing.T) {
	c := poolcontroller.New()
	c.Track(1, samplePool("0xPool"))

	due := c.GetPoolsForRefresh(1)
	require.Empty(t, due, "freshly tracked pool is not due for 10s")

	c.SetNextRefresh(1, "0xpool", time.Now().Add(-time.Second))
	due = c.GetPoolsForRefresh(1)
	require.Len(t, due, 1)
}

func TestRecordObservationPromotesOnLargeDelta(t *testing.T) {
	c := poolcontroller.New()
	alive := c.Track(1, samplePool("0xPool"))
	alive.LastPrice = 100.0

	c.RecordObservation(1, "0xPool", 42, 101.0) // 1% delta
	got, ok := c.Get(1, "0xPool")
	require.True(t, ok)
	require.Equal(t, types.TierHigh, got.Tier)
	require.LessOrEqual(t, time.Until(got.NextRefresh), 5*time.Second)
	require.Equal(t, uint64(42), got.LastBlockSeen)
	require.Equal(t, 101.0, got.LastPrice)
}

func TestRecordObservationSetsNormalOnMediumDelta(t *testing.T) {
	c := poolcontroller.New()
	alive := c.Track(1, samplePool("0xPool"))
	alive.Tier = types.TierHigh
	alive.LastPrice = 100.0

	c.RecordObservation(1, "0xPool", 1, 100.2) // 0.2% delta
	got, _ := c.Get(1, "0xPool")
	require.Equal(t, types.TierNormal, got.Tier)
}

func TestRecordObservationDemotesOneStepOnSmallDelta(t *testing.T) {
	c := poolcontroller.New()
	alive := c.Track(1, samplePool("0xPool"))
	alive.Tier = types.TierHigh
	alive.LastPrice = 100.0

	c.RecordObservation(1, "0xPool", 1, 100.0001) // well under 0.1%
	got, _ := c.Get(1, "0xPool")
	require.Equal(t, types.TierNormal, got.Tier, "high never demotes directly to low")
}
