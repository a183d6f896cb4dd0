package cc1101

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RegisterMap holds the CC1101 configuration registers and a copy of the
// status registers at the time it was read
type RegisterMap struct {
	IOCFG2   uint8 `json:"iocfg2"`   // 0x00
	IOCFG1   uint8 `json:"iocfg1"`   // 0x01
	IOCFG0   uint8 `json:"iocfg0"`   // 0x02
	FIFOTHR  uint8 `json:"fifothr"`  // 0x03
	SYNC1    uint8 `json:"sync1"`    // 0x04
	SYNC0    uint8 `json:"sync0"`    // 0x05
	PKTLEN   uint8 `json:"pktlen"`   // 0x06
	PKTCTRL1 uint8 `json:"pktctrl1"` // 0x07
	PKTCTRL0 uint8 `json:"pktctrl0"` // 0x08
	ADDR     uint8 `json:"addr"`     // 0x09
	CHANNR   uint8 `json:"channr"`   // 0x0A
	FSCTRL1  uint8 `json:"fsctrl1"`  // 0x0B
	FSCTRL0  uint8 `json:"fsctrl0"`  // 0x0C
	FREQ2    uint8 `json:"freq2"`    // 0x0D
	FREQ1    uint8 `json:"freq1"`    // 0x0E
	FREQ0    uint8 `json:"freq0"`    // 0x0F
	MDMCFG4  uint8 `json:"mdmcfg4"`  // 0x10
	MDMCFG3  uint8 `json:"mdmcfg3"`  // 0x11
	MDMCFG2  uint8 `json:"mdmcfg2"`  // 0x12
	MDMCFG1  uint8 `json:"mdmcfg1"`  // 0x13
	MDMCFG0  uint8 `json:"mdmcfg0"`  // 0x14
	DEVIATN  uint8 `json:"deviatn"`  // 0x15
	MCSM2    uint8 `json:"mcsm2"`    // 0x16
	MCSM1    uint8 `json:"mcsm1"`    // 0x17
	MCSM0    uint8 `json:"mcsm0"`    // 0x18
	FOCCFG   uint8 `json:"foccfg"`   // 0x19
	BSCFG    uint8 `json:"bscfg"`    // 0x1A
	AGCCTRL2 uint8 `json:"agcctrl2"` // 0x1B
	AGCCTRL1 uint8 `json:"agcctrl1"` // 0x1C
	AGCCTRL0 uint8 `json:"agcctrl0"` // 0x1D
	WOREVT1  uint8 `json:"worevt1"`  // 0x1E
	WOREVT0  uint8 `json:"worevt0"`  // 0x1F
	WORCTRL  uint8 `json:"worctrl"`  // 0x20
	FREND1   uint8 `json:"frend1"`   // 0x21
	FREND0   uint8 `json:"frend0"`   // 0x22
	FSCAL3   uint8 `json:"fscal3"`   // 0x23
	FSCAL2   uint8 `json:"fscal2"`   // 0x24
	FSCAL1   uint8 `json:"fscal1"`   // 0x25
	FSCAL0   uint8 `json:"fscal0"`   // 0x26
	RCCTRL1  uint8 `json:"rcctrl1"`  // 0x27
	RCCTRL0  uint8 `json:"rcctrl0"`  // 0x28
	FSTEST   uint8 `json:"fstest"`   // 0x29
	PTEST    uint8 `json:"ptest"`    // 0x2A
	AGCTEST  uint8 `json:"agctest"`  // 0x2B
	TEST2    uint8 `json:"test2"`    // 0x2C
	TEST1    uint8 `json:"test1"`    // 0x2D
	TEST0    uint8 `json:"test0"`    // 0x2E

	// Read-only status registers
	PARTNUM   uint8 `json:"partnum"`   // 0x30
	VERSION   uint8 `json:"version"`   // 0x31
	FREQEST   uint8 `json:"freqest"`   // 0x32
	LQI       uint8 `json:"lqi"`       // 0x33
	RSSI      uint8 `json:"rssi"`      // 0x34
	MARCSTATE uint8 `json:"marcstate"` // 0x35
	PKTSTATUS uint8 `json:"pktstatus"` // 0x38
	RXBYTES   uint8 `json:"rxbytes"`   // 0x3B
}

// config returns pointers to the configuration registers in address order
func (m *RegisterMap) config() []*uint8 {
	return []*uint8{
		&m.IOCFG2, &m.IOCFG1, &m.IOCFG0, &m.FIFOTHR, &m.SYNC1, &m.SYNC0,
		&m.PKTLEN, &m.PKTCTRL1, &m.PKTCTRL0, &m.ADDR, &m.CHANNR,
		&m.FSCTRL1, &m.FSCTRL0, &m.FREQ2, &m.FREQ1, &m.FREQ0,
		&m.MDMCFG4, &m.MDMCFG3, &m.MDMCFG2, &m.MDMCFG1, &m.MDMCFG0, &m.DEVIATN,
		&m.MCSM2, &m.MCSM1, &m.MCSM0, &m.FOCCFG, &m.BSCFG,
		&m.AGCCTRL2, &m.AGCCTRL1, &m.AGCCTRL0,
		&m.WOREVT1, &m.WOREVT0, &m.WORCTRL,
		&m.FREND1, &m.FREND0, &m.FSCAL3, &m.FSCAL2, &m.FSCAL1, &m.FSCAL0,
		&m.RCCTRL1, &m.RCCTRL0, &m.FSTEST, &m.PTEST, &m.AGCTEST,
		&m.TEST2, &m.TEST1, &m.TEST0,
	}
}

// FrequencyHz returns the programmed carrier frequency
func (m *RegisterMap) FrequencyHz() uint32 {
	return Frequency(uint32(m.FREQ2)<<16 | uint32(m.FREQ1)<<8 | uint32(m.FREQ0))
}

// DataRateBaud returns the programmed data rate
func (m *RegisterMap) DataRateBaud() uint32 {
	return uint32(DataRate(m.MDMCFG4&0x0F, m.MDMCFG3))
}

// DeviationHz returns the programmed FSK deviation
func (m *RegisterMap) DeviationHz() uint32 {
	return uint32(Deviation(m.DEVIATN>>4&0x07, m.DEVIATN&0x07))
}

// BandwidthHz returns the programmed RX filter bandwidth
func (m *RegisterMap) BandwidthHz() uint32 {
	return uint32(Bandwidth(m.MDMCFG4>>6, m.MDMCFG4>>4&0x03))
}

// ChannelSpacingHz returns the programmed channel spacing
func (m *RegisterMap) ChannelSpacingHz() uint32 {
	return uint32(ChannelSpacing(m.MDMCFG1&0x03, m.MDMCFG0))
}

// SyncWord returns the 16-bit sync word
func (m *RegisterMap) SyncWord() uint16 {
	return uint16(m.SYNC1)<<8 | uint16(m.SYNC0)
}

// ReadAllRegisters reads the configuration space in one burst and the
// status registers one by one
func ReadAllRegisters(c *Chip) (*RegisterMap, error) {
	m := &RegisterMap{}
	block := c.ReadBurst(0x00, int(lastConfigReg)+1)
	for i, p := range m.config() {
		*p = block[i]
	}

	m.PARTNUM = c.ReadStatus(RegPARTNUM)
	m.VERSION = c.ReadStatus(RegVERSION)
	m.FREQEST = c.ReadStatus(RegFREQEST)
	m.LQI = c.ReadStatus(RegLQI)
	m.RSSI = c.ReadStatus(RegRSSI)
	m.MARCSTATE = c.ReadStatus(RegMARCSTATE)
	m.PKTSTATUS = c.ReadStatus(RegPKTSTATUS)
	m.RXBYTES = c.ReadStatus(RegRXBYTES)

	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("failed to read registers: %w", err)
	}
	return m, nil
}

// WriteAllRegisters writes the configuration space in one burst
// Note: status registers are read-only and are not written
func WriteAllRegisters(c *Chip, m *RegisterMap) error {
	regs := m.config()
	block := make([]byte, len(regs))
	for i, p := range regs {
		block[i] = *p
	}
	c.WriteBurst(0x00, block)
	if err := c.Err(); err != nil {
		return fmt.Errorf("failed to write registers: %w", err)
	}
	return nil
}

// Snapshot is a saved register configuration
type Snapshot struct {
	Source    string      `json:"source,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Registers RegisterMap `json:"registers"`
}

// idleTimeout bounds the wait for IDLE before register access
const idleTimeout = 50 * time.Millisecond

// TakeSnapshot reads all registers. The radio is idled for the read and
// put back into RX afterwards if it was receiving.
func TakeSnapshot(c *Chip, source string) (*Snapshot, error) {
	original := c.State()
	if original != StateIDLE {
		c.Strobe(StrobeSIDLE)
		if err := c.WaitForState(StateIDLE, idleTimeout); err != nil {
			return nil, fmt.Errorf("failed to set IDLE state: %w", err)
		}
	}

	regs, err := ReadAllRegisters(c)
	if err != nil {
		return nil, err
	}
	regs.MARCSTATE = byte(original)

	if original == StateRX {
		c.Strobe(StrobeSRX)
	}

	return &Snapshot{
		Source:    source,
		Timestamp: time.Now(),
		Registers: *regs,
	}, nil
}

// ApplySnapshot writes a saved configuration back to the chip, leaving it IDLE
func ApplySnapshot(c *Chip, s *Snapshot) error {
	c.Strobe(StrobeSIDLE)
	if err := c.WaitForState(StateIDLE, idleTimeout); err != nil {
		return fmt.Errorf("failed to set IDLE state: %w", err)
	}
	if err := WriteAllRegisters(c, &s.Registers); err != nil {
		return err
	}
	c.Strobe(StrobeSCAL)
	return c.WaitForState(StateIDLE, calibrationTimeout)
}

// SaveSnapshot writes s as indented JSON, creating the directory if needed
func SaveSnapshot(s *Snapshot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}
