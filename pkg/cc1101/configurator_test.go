package cc1101_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/cc1101/cc1101test"
)

// bruteForce scans the full domain and keeps the first pair with minimal
// absolute error
func bruteForce(target float64, maxE, maxM int, value func(e, m uint8) float64) (uint8, uint8) {
	var bestE, bestM uint8
	bestErr := -1.0
	for e := 0; e <= maxE; e++ {
		for m := 0; m <= maxM; m++ {
			diff := math.Abs(value(uint8(e), uint8(m)) - target)
			if bestErr < 0 || diff < bestErr {
				bestErr, bestE, bestM = diff, uint8(e), uint8(m)
			}
		}
	}
	return bestE, bestM
}

func TestBestFitMatchesBruteForce(t *testing.T) {
	families := []struct {
		name    string
		maxE    int
		maxM    int
		value   func(e, m uint8) float64
		search  func(float64) (uint8, uint8)
		targets []float64
	}{
		{"data rate", 15, 255, cc1101.DataRate, cc1101.DataRateRegs,
			[]float64{600, 1111, 1200, 2400.5, 4800, 32768, 38400, 76800, 100000, 250000, 500000}},
		{"deviation", 7, 7, cc1101.Deviation, cc1101.DeviationRegs,
			[]float64{1587, 5000, 20000, 45000, 47607.4, 50000, 380859, 1000000}},
		{"bandwidth", 3, 3, cc1101.Bandwidth, cc1101.BandwidthRegs,
			[]float64{58000, 100000, 200000, 270000, 812500, 900000}},
		{"channel spacing", 3, 255, cc1101.ChannelSpacing, cc1101.ChannelSpacingRegs,
			[]float64{25000, 50000, 100000, 199951.2, 200000, 405456}},
	}

	for _, f := range families {
		t.Run(f.name, func(t *testing.T) {
			for _, target := range f.targets {
				wantE, wantM := bruteForce(target, f.maxE, f.maxM, f.value)
				gotE, gotM := f.search(target)
				assert.Equal(t, wantE, gotE, "exponent for %v", target)
				assert.Equal(t, wantM, gotM, "mantissa for %v", target)
			}
		})
	}
}

func TestBestFitUsesExactValues(t *testing.T) {
	// 1111 baud: M=102 gives 1109.60 and M=103 gives 1112.70. Truncated to
	// whole baud M=103 would look closer.
	e, m := cc1101.DataRateRegs(1111)
	assert.Equal(t, [2]uint8{5, 102}, [2]uint8{e, m})
	assert.InDelta(t, 1.3999, math.Abs(cc1101.DataRate(e, m)-1111), 0.001)
}

func TestKnownEncodings(t *testing.T) {
	e, m := cc1101.DataRateRegs(100000)
	assert.Equal(t, [2]uint8{11, 248}, [2]uint8{e, m})
	assert.InDelta(t, 99975.586, cc1101.DataRate(e, m), 0.001)

	e, m = cc1101.DeviationRegs(50000)
	assert.Equal(t, [2]uint8{5, 0}, [2]uint8{e, m})

	e, m = cc1101.BandwidthRegs(200000)
	assert.Equal(t, [2]uint8{2, 0}, [2]uint8{e, m})

	e, m = cc1101.ChannelSpacingRegs(200000)
	assert.Equal(t, [2]uint8{2, 248}, [2]uint8{e, m})

	assert.Equal(t, uint32(0x216BD0), cc1101.FrequencyWord(868950000))
	assert.Equal(t, uint32(868949707), cc1101.Frequency(0x216BD0))
}

func TestNewModemConfigT1(t *testing.T) {
	p, err := cc1101.LookupProfile("T1")
	require.NoError(t, err)

	mc := cc1101.NewModemConfig(p)
	assert.Equal(t, uint32(0x216BD0), mc.FREQ)
	assert.Equal(t, uint8(0x8B), mc.MDMCFG4)
	assert.Equal(t, uint8(0xF8), mc.MDMCFG3)
	assert.Equal(t, uint8(0x12), mc.MDMCFG2)
	assert.Equal(t, uint8(0x22), mc.MDMCFG1)
	assert.Equal(t, uint8(0xF8), mc.MDMCFG0)
	assert.Equal(t, uint8(0x50), mc.DEVIATN)
}

func TestConfigure(t *testing.T) {
	bus := cc1101test.NewBus()
	bus.SetState(cc1101.StateRX)
	c := cc1101.New(bus, nil)

	p, err := cc1101.LookupProfile("")
	require.NoError(t, err)
	require.NoError(t, cc1101.Configure(c, p))

	assert.Equal(t, cc1101.StateIDLE, bus.State(), "configured radio is idle, not receiving")
	assert.Equal(t, byte(cc1101.GDOSyncWord), bus.Register(cc1101.RegIOCFG2))
	assert.Equal(t, byte(cc1101.GDORXFIFOThreshold), bus.Register(cc1101.RegIOCFG0))
	assert.Equal(t, byte(0x54), bus.Register(cc1101.RegSYNC1))
	assert.Equal(t, byte(0x3D), bus.Register(cc1101.RegSYNC0))
	assert.Equal(t, byte(0xFF), bus.Register(cc1101.RegPKTLEN))
	assert.Equal(t, byte(cc1101.PacketLengthInfinite), bus.Register(cc1101.RegPKTCTRL0))
	assert.Equal(t, byte(0x21), bus.Register(cc1101.RegFREQ2))
	assert.Equal(t, byte(0x6B), bus.Register(cc1101.RegFREQ1))
	assert.Equal(t, byte(0xD0), bus.Register(cc1101.RegFREQ0))
	assert.Equal(t, byte(0x8B), bus.Register(cc1101.RegMDMCFG4))

	strobes := bus.Strobes()
	require.NotEmpty(t, strobes)
	assert.Equal(t, cc1101.StrobeSCAL, strobes[len(strobes)-1])
	assert.NotContains(t, strobes, cc1101.StrobeSRX)
}

func TestConfigureFailsWithoutBus(t *testing.T) {
	p, _ := cc1101.LookupProfile("C1")
	err := cc1101.Configure(cc1101.New(nil, nil), p)
	assert.ErrorIs(t, err, cc1101.ErrNoBus)
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"C1", "T1"}, cc1101.ProfileNames())

	_, err := cc1101.LookupProfile("S2")
	assert.ErrorIs(t, err, cc1101.ErrUnknownProfile)

	p, _ := cc1101.LookupProfile("T1")
	o := p.Override(868.3e6, 0, 0, 270e3, 0)
	assert.Equal(t, 868.3e6, o.FrequencyHz)
	assert.Equal(t, p.DataRateBaud, o.DataRateBaud)
	assert.Equal(t, 270e3, o.BandwidthHz)
	assert.Equal(t, 868.95e6, p.FrequencyHz, "original unchanged")
}

func TestSnapshotRoundTrip(t *testing.T) {
	bus := cc1101test.NewBus()
	c := cc1101.New(bus, nil)
	p, _ := cc1101.LookupProfile("T1")
	require.NoError(t, cc1101.Configure(c, p))
	bus.SetState(cc1101.StateRX)

	snap, err := cc1101.TakeSnapshot(c, "test")
	require.NoError(t, err)
	assert.Equal(t, cc1101.StateRX, bus.State(), "receiving radio is put back into RX")
	assert.Equal(t, byte(cc1101.StateRX), snap.Registers.MARCSTATE)
	assert.Equal(t, uint16(0x543D), snap.Registers.SyncWord())
	assert.Equal(t, uint32(868949707), snap.Registers.FrequencyHz())
	assert.Equal(t, uint32(99975), snap.Registers.DataRateBaud())
	assert.Equal(t, uint32(203125), snap.Registers.BandwidthHz())
	assert.Equal(t, uint32(199951), snap.Registers.ChannelSpacingHz())
	assert.Equal(t, uint32(50781), snap.Registers.DeviationHz())

	path := filepath.Join(t.TempDir(), "cfg", "snapshot.json")
	require.NoError(t, cc1101.SaveSnapshot(snap, path))
	loaded, err := cc1101.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Registers, loaded.Registers)

	other := cc1101test.NewBus()
	oc := cc1101.New(other, nil)
	require.NoError(t, cc1101.ApplySnapshot(oc, loaded))
	assert.Equal(t, bus.Register(cc1101.RegMDMCFG4), other.Register(cc1101.RegMDMCFG4))
	assert.Equal(t, bus.Register(cc1101.RegTEST0), other.Register(cc1101.RegTEST0))
	assert.Equal(t, cc1101.StateIDLE, other.State())
}
