package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBasisBps(t *testing.T) {
	assert.InDelta(t, 2.5, ComputeBasisBps(100000, 100025), 1e-9)
	assert.InDelta(t, -5.0, ComputeBasisBps(100000, 99950), 1e-9)
	assert.Zero(t, ComputeBasisBps(0, 100000))
	assert.Zero(t, ComputeBasisBps(-1, 100000))
}

func TestCrossBasisBps(t *testing.T) {
	// Primary quoted in KRW, hedge in USDT: 1/1300 adjustment.
	primaryKRW := 130000000.0
	hedgeUSDT := 100050.0
	got := CrossBasisBps(primaryKRW, hedgeUSDT, 1.0/1300)
	assert.InDelta(t, 5.0, got, 1e-9)

	// No adjustment degenerates to the plain basis.
	assert.Equal(t, ComputeBasisBps(100, 101), CrossBasisBps(100, 101, 1))
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	assert.NoError(t, p.Validate())

	bad := p
	bad.EntryBps = 0.2
	bad.ExitBps = 2.0
	assert.Error(t, bad.Validate())

	bad = p
	bad.ExitBps = -1
	assert.Error(t, bad.Validate())

	bad = p
	bad.Notional = 0
	assert.Error(t, bad.Validate())

	bad = p
	bad.Symbol = ""
	assert.Error(t, bad.Validate())
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"carry", "reverse", "auto"} {
		_, err := ParseMode(s)
		assert.NoError(t, err)
	}
	_, err := ParseMode("yolo")
	assert.Error(t, err)
}

func TestPolicyFeeSelection(t *testing.T) {
	assert.False(t, PolicyTakerTaker.UsesMakerSpot())
	assert.True(t, PolicySpotMakerFuturesTaker.UsesMakerSpot())
	assert.True(t, PolicyMakerMaker.UsesMakerSpot())
}

func TestCrossParamsKey(t *testing.T) {
	p := CrossParams{
		PrimaryVenue: "bithumb", PrimarySymbol: "BTCKRW",
		HedgeVenue: "binance", HedgeSymbol: "BTCUSDT",
	}
	assert.Equal(t, "BTCKRW@bithumb|BTCUSDT@binance", p.Key())
}
