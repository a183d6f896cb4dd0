package cc1101

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Sync word that precedes every wM-Bus frame in mode T and C
const (
	SyncWordHigh = 0x54
	SyncWordLow  = 0x3D
)

// Fixed modem settings: GFSK with 16 of 16 sync word bits, 4 preamble bytes
const (
	mdmcfg2WMBus  = 0x10 | 0x02
	preamble4Byte = 2 << 4
)

// calibrationTimeout bounds the SCAL strobe, which takes under a millisecond
const calibrationTimeout = 10 * time.Millisecond

// baseline holds the static register values for wM-Bus reception
var baseline = []struct {
	reg   Register
	value byte
}{
	{RegIOCFG1, GDOHighImpedance},
	{RegADDR, 0x00},
	{RegCHANNR, 0x00},
	{RegFSCTRL1, 0x08},
	{RegFSCTRL0, 0x00},
	{RegMCSM2, 0x07},
	{RegMCSM1, 0x00}, // RX ends in IDLE
	{RegMCSM0, 0x18}, // calibrate when leaving IDLE
	{RegFOCCFG, 0x2E},
	{RegBSCFG, 0xBF},
	{RegAGCCTRL2, 0x43},
	{RegAGCCTRL1, 0x09},
	{RegAGCCTRL0, 0xB5},
	{RegFREND1, 0xB6},
	{RegFREND0, 0x10},
	{RegFSCAL3, 0xEA},
	{RegFSCAL2, 0x2A},
	{RegFSCAL1, 0x00},
	{RegFSCAL0, 0x1F},
	{RegTEST2, 0x81},
	{RegTEST1, 0x35},
	{RegTEST0, 0x09},
}

// bestFit searches exponent 0..maxE and mantissa 0..maxM for the pair whose
// value is closest to target. Ties keep the first pair found.
func bestFit(target float64, maxE, maxM int, value func(e, m uint8) float64) (uint8, uint8) {
	bestErr := math.Inf(1)
	var bestE, bestM uint8
	for e := 0; e <= maxE; e++ {
		for m := 0; m <= maxM; m++ {
			diff := math.Abs(value(uint8(e), uint8(m)) - target)
			if diff < bestErr {
				bestErr, bestE, bestM = diff, uint8(e), uint8(m)
				if bestErr == 0 {
					return bestE, bestM
				}
			}
		}
	}
	return bestE, bestM
}

// DataRate returns the data rate in baud for DRATE_E and DRATE_M
func DataRate(e, m uint8) float64 {
	return CrystalHz * float64(256+int(m)) * math.Ldexp(1, int(e)-28)
}

// DataRateRegs finds DRATE_E (MDMCFG4[3:0]) and DRATE_M (MDMCFG3) for a data rate
func DataRateRegs(baud float64) (e, m uint8) {
	return bestFit(baud, 15, 255, DataRate)
}

// Deviation returns the FSK deviation in Hz for DEVIATION_E and DEVIATION_M
func Deviation(e, m uint8) float64 {
	return CrystalHz * float64(8+int(m)) * math.Ldexp(1, int(e)-17)
}

// DeviationRegs finds DEVIATION_E and DEVIATION_M for a deviation
func DeviationRegs(hz float64) (e, m uint8) {
	return bestFit(hz, 7, 7, Deviation)
}

// Bandwidth returns the RX filter bandwidth in Hz for CHANBW_E and CHANBW_M
func Bandwidth(e, m uint8) float64 {
	return CrystalHz / (8 * float64(4+int(m)) * math.Ldexp(1, int(e)))
}

// BandwidthRegs finds CHANBW_E and CHANBW_M (MDMCFG4[7:4]) for a bandwidth
func BandwidthRegs(hz float64) (e, m uint8) {
	return bestFit(hz, 3, 3, Bandwidth)
}

// ChannelSpacing returns the channel spacing in Hz for CHANSPC_E and CHANSPC_M
func ChannelSpacing(e, m uint8) float64 {
	return CrystalHz * float64(256+int(m)) * math.Ldexp(1, int(e)-18)
}

// ChannelSpacingRegs finds CHANSPC_E (MDMCFG1[1:0]) and CHANSPC_M (MDMCFG0)
func ChannelSpacingRegs(hz float64) (e, m uint8) {
	return bestFit(hz, 3, 255, ChannelSpacing)
}

// FrequencyWord returns the 24-bit FREQ2/1/0 value for a carrier frequency
func FrequencyWord(hz uint32) uint32 {
	return uint32((uint64(hz) << 16) / CrystalHz)
}

// Frequency returns the carrier frequency in Hz for a FREQ word
func Frequency(word uint32) uint32 {
	return uint32(uint64(word) * CrystalHz >> 16)
}

// ModemConfig holds the computed modem register values for a profile
type ModemConfig struct {
	FREQ    uint32 `json:"freq"`
	MDMCFG4 uint8  `json:"mdmcfg4"`
	MDMCFG3 uint8  `json:"mdmcfg3"`
	MDMCFG2 uint8  `json:"mdmcfg2"`
	MDMCFG1 uint8  `json:"mdmcfg1"`
	MDMCFG0 uint8  `json:"mdmcfg0"`
	DEVIATN uint8  `json:"deviatn"`
}

// NewModemConfig computes the register encodings for p
func NewModemConfig(p Profile) ModemConfig {
	drE, drM := DataRateRegs(p.DataRateBaud)
	devE, devM := DeviationRegs(p.DeviationHz)
	bwE, bwM := BandwidthRegs(p.BandwidthHz)
	csE, csM := ChannelSpacingRegs(p.ChannelSpacingHz)

	return ModemConfig{
		FREQ:    FrequencyWord(uint32(p.FrequencyHz)),
		MDMCFG4: bwE<<6 | bwM<<4 | drE&0x0F,
		MDMCFG3: drM,
		MDMCFG2: mdmcfg2WMBus,
		MDMCFG1: preamble4Byte | csE&0x03,
		MDMCFG0: csM,
		DEVIATN: devE<<4 | devM&0x07,
	}
}

// Configure programs the chip for wM-Bus reception with profile p. On return
// the radio is calibrated and IDLE; reception has to be started separately.
func Configure(c *Chip, p Profile) error {
	mc := NewModemConfig(p)

	c.Strobe(StrobeSIDLE)
	for _, r := range baseline {
		c.WriteRegister(r.reg, r.value)
	}

	c.WriteRegister(RegIOCFG2, GDOSyncWord)
	c.WriteRegister(RegIOCFG0, GDORXFIFOThreshold)
	c.WriteRegister(RegFIFOTHR, FIFOThreshold4Bytes)
	c.WriteRegister(RegSYNC1, SyncWordHigh)
	c.WriteRegister(RegSYNC0, SyncWordLow)
	c.WriteRegister(RegPKTLEN, 0xFF)
	c.WriteRegister(RegPKTCTRL1, 0x00)
	c.WriteRegister(RegPKTCTRL0, PacketLengthInfinite)

	c.WriteBurst(RegFREQ2, []byte{byte(mc.FREQ >> 16), byte(mc.FREQ >> 8), byte(mc.FREQ)})
	c.WriteRegister(RegMDMCFG4, mc.MDMCFG4)
	c.WriteRegister(RegMDMCFG3, mc.MDMCFG3)
	c.WriteRegister(RegMDMCFG2, mc.MDMCFG2)
	c.WriteRegister(RegMDMCFG1, mc.MDMCFG1)
	c.WriteRegister(RegMDMCFG0, mc.MDMCFG0)
	c.WriteRegister(RegDEVIATN, mc.DEVIATN)

	if err := c.Err(); err != nil {
		return fmt.Errorf("failed to write registers: %w", err)
	}

	c.Strobe(StrobeSCAL)
	if err := c.WaitForState(StateIDLE, calibrationTimeout); err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}

	c.logger.Info("radio configured",
		zap.String("profile", p.Name),
		zap.Float64("frequency_hz", p.FrequencyHz),
		zap.Uint32("freq_word", mc.FREQ),
		zap.Float64("data_rate", DataRate(mc.MDMCFG4&0x0F, mc.MDMCFG3)),
		zap.Float64("deviation", Deviation(mc.DEVIATN>>4, mc.DEVIATN&0x07)),
		zap.Float64("bandwidth", Bandwidth(mc.MDMCFG4>>6, mc.MDMCFG4>>4&0x03)),
		zap.Float64("channel_spacing", ChannelSpacing(mc.MDMCFG1&0x03, mc.MDMCFG0)),
	)
	return nil
}
