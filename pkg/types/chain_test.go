package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStateDecode(t *testing.T) {
	raw := `{
		"chain": "main",
		"blocks": 840000,
		"headers": 840002,
		"bestblockhash": "0000000000000000000320283a032748cef8227873ff4872689bf23f1cda83a5",
		"difficulty": 86388558925171.02,
		"mediantime": 1713570767,
		"verificationprogress": 0.9999987,
		"initialblockdownload": false,
		"chainwork": "0000000000000000000000000000000000000000753bdab0e0d745453677442b",
		"size_on_disk": 650322768423,
		"pruned": false,
		"warnings": ""
	}`

	var state ChainState
	require.NoError(t, json.Unmarshal([]byte(raw), &state))

	assert.Equal(t, "main", state.Chain)
	assert.Equal(t, uint64(840000), state.Height)
	assert.Equal(t, uint64(840002), state.Headers)
	assert.True(t, state.Syncing(), "height behind headers should report syncing")
}

func TestChainStateSyncing(t *testing.T) {
	tests := []struct {
		name  string
		state ChainState
		want  bool
	}{
		{name: "caught up", state: ChainState{Height: 10, Headers: 10}, want: false},
		{name: "behind headers", state: ChainState{Height: 9, Headers: 10}, want: true},
		{name: "initial block download", state: ChainState{Height: 10, Headers: 10, InitialBlockDownload: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Syncing())
		})
	}
}

func TestBlockStatsDecode(t *testing.T) {
	raw := `{
		"avgfee": 2963,
		"avgfeerate": 12,
		"avgtxsize": 535,
		"blockhash": "00000000000000000001b2b3e0fa4a6ebd3d41a4b3dfe3bd4e1c3a0b5f4d0b0d",
		"feerate_percentiles": [4, 6, 10, 15, 30],
		"height": 840001,
		"ins": 9321,
		"maxfee": 1500000,
		"maxfeerate": 2001,
		"maxtxsize": 99891,
		"medianfee": 1632,
		"mediantime": 1713571000,
		"mediantxsize": 223,
		"minfee": 141,
		"minfeerate": 1,
		"mintxsize": 150,
		"outs": 10456,
		"subsidy": 312500000,
		"swtotal_size": 1650000,
		"swtotal_weight": 3900000,
		"swtxs": 3050,
		"time": 1713571767,
		"total_out": 41234567890,
		"total_size": 1700000,
		"total_weight": 3993000,
		"totalfee": 9385123,
		"txs": 3168,
		"utxo_increase": 1135,
		"utxo_size_inc": -4021
	}`

	var stats BlockStats
	require.NoError(t, json.Unmarshal([]byte(raw), &stats))

	assert.Equal(t, uint64(840001), stats.Height)
	assert.Equal(t, FeeRatePercentiles{4, 6, 10, 15, 30}, stats.FeeRatePercentiles)
	assert.Equal(t, int64(-4021), stats.UTXOSizeIncrease)
	assert.Equal(t, uint64(312500000), stats.Subsidy)
}

func TestFeeEstimateTiers(t *testing.T) {
	// Arrange
	raw := `{"fastestFee":10,"halfHourFee":5,"hourFee":3,"economyFee":1,"minimumFee":1}`
	var fee FeeEstimate
	require.NoError(t, json.Unmarshal([]byte(raw), &fee))

	// Act
	tiers := fee.Tiers()

	// Assert
	require.Len(t, tiers, 5)
	assert.Equal(t, FeeTier{Name: "fastest", Rate: 10}, tiers[0])
	assert.Equal(t, FeeTier{Name: "half_hour", Rate: 5}, tiers[1])
	assert.Equal(t, FeeTier{Name: "hour", Rate: 3}, tiers[2])
	assert.Equal(t, FeeTier{Name: "economy", Rate: 1}, tiers[3])
	assert.Equal(t, FeeTier{Name: "minimum", Rate: 1}, tiers[4])
}
