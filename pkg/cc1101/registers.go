package cc1101

// Register is a CC1101 register address
type Register uint8

// Configuration registers (read/write)
const (
	RegIOCFG2   Register = 0x00 // GDO2 output pin configuration
	RegIOCFG1   Register = 0x01 // GDO1 output pin configuration
	RegIOCFG0   Register = 0x02 // GDO0 output pin configuration
	RegFIFOTHR  Register = 0x03 // RX FIFO and TX FIFO thresholds
	RegSYNC1    Register = 0x04 // Sync word, high byte
	RegSYNC0    Register = 0x05 // Sync word, low byte
	RegPKTLEN   Register = 0x06 // Packet length
	RegPKTCTRL1 Register = 0x07 // Packet automation control
	RegPKTCTRL0 Register = 0x08 // Packet automation control
	RegADDR     Register = 0x09 // Device address
	RegCHANNR   Register = 0x0A // Channel number
	RegFSCTRL1  Register = 0x0B // Frequency synthesizer control
	RegFSCTRL0  Register = 0x0C // Frequency synthesizer control
	RegFREQ2    Register = 0x0D // Frequency control word, high byte
	RegFREQ1    Register = 0x0E // Frequency control word, middle byte
	RegFREQ0    Register = 0x0F // Frequency control word, low byte
	RegMDMCFG4  Register = 0x10 // Modem configuration
	RegMDMCFG3  Register = 0x11 // Modem configuration
	RegMDMCFG2  Register = 0x12 // Modem configuration
	RegMDMCFG1  Register = 0x13 // Modem configuration
	RegMDMCFG0  Register = 0x14 // Modem configuration
	RegDEVIATN  Register = 0x15 // Modem deviation setting
	RegMCSM2    Register = 0x16 // Main radio control state machine configuration
	RegMCSM1    Register = 0x17 // Main radio control state machine configuration
	RegMCSM0    Register = 0x18 // Main radio control state machine configuration
	RegFOCCFG   Register = 0x19 // Frequency offset compensation configuration
	RegBSCFG    Register = 0x1A // Bit synchronization configuration
	RegAGCCTRL2 Register = 0x1B // AGC control
	RegAGCCTRL1 Register = 0x1C // AGC control
	RegAGCCTRL0 Register = 0x1D // AGC control
	RegWOREVT1  Register = 0x1E // High byte event 0 timeout
	RegWOREVT0  Register = 0x1F // Low byte event 0 timeout
	RegWORCTRL  Register = 0x20 // Wake on radio control
	RegFREND1   Register = 0x21 // Front end RX configuration
	RegFREND0   Register = 0x22 // Front end TX configuration
	RegFSCAL3   Register = 0x23 // Frequency synthesizer calibration
	RegFSCAL2   Register = 0x24 // Frequency synthesizer calibration
	RegFSCAL1   Register = 0x25 // Frequency synthesizer calibration
	RegFSCAL0   Register = 0x26 // Frequency synthesizer calibration
	RegRCCTRL1  Register = 0x27 // RC oscillator configuration
	RegRCCTRL0  Register = 0x28 // RC oscillator configuration
	RegFSTEST   Register = 0x29 // Frequency synthesizer calibration control
	RegPTEST    Register = 0x2A // Production test
	RegAGCTEST  Register = 0x2B // AGC test
	RegTEST2    Register = 0x2C // Various test settings
	RegTEST1    Register = 0x2D // Various test settings
	RegTEST0    Register = 0x2E // Various test settings
)

// Status registers (read only, must be read with the burst bit set)
const (
	RegPARTNUM   Register = 0x30 // Part number
	RegVERSION   Register = 0x31 // Current version number
	RegFREQEST   Register = 0x32 // Frequency offset estimate
	RegLQI       Register = 0x33 // Demodulator estimate for link quality
	RegRSSI      Register = 0x34 // Received signal strength indication
	RegMARCSTATE Register = 0x35 // Control state machine state
	RegWORTIME1  Register = 0x36 // High byte of WOR timer
	RegWORTIME0  Register = 0x37 // Low byte of WOR timer
	RegPKTSTATUS Register = 0x38 // Current GDOx status and packet status
	RegVCOVCDAC  Register = 0x39 // Current setting from PLL calibration module
	RegTXBYTES   Register = 0x3A // Underflow and number of bytes in the TX FIFO
	RegRXBYTES   Register = 0x3B // Overflow and number of bytes in the RX FIFO
	RegRCCTRL1ST Register = 0x3C // Last RC oscillator calibration result
	RegRCCTRL0ST Register = 0x3D // Last RC oscillator calibration result
	RegPATABLE   Register = 0x3E // Power amplifier table
	RegFIFO      Register = 0x3F // TX/RX FIFO
)

const lastConfigReg = RegTEST0

// IsStatus reports whether r lives in the status register range
func (r Register) IsStatus() bool {
	return r >= RegPARTNUM && r <= RegRCCTRL0ST
}

// Strobe is a single byte command
type Strobe uint8

// Command strobes
const (
	StrobeSRES    Strobe = 0x30 // Reset chip
	StrobeSFSTXON Strobe = 0x31 // Enable and calibrate frequency synthesizer
	StrobeSXOFF   Strobe = 0x32 // Turn off crystal oscillator
	StrobeSCAL    Strobe = 0x33 // Calibrate frequency synthesizer and turn it off
	StrobeSRX     Strobe = 0x34 // Enable RX
	StrobeSTX     Strobe = 0x35 // Enable TX
	StrobeSIDLE   Strobe = 0x36 // Exit RX/TX
	StrobeSWOR    Strobe = 0x38 // Start automatic RX polling sequence
	StrobeSPWD    Strobe = 0x39 // Enter power down mode when CSn goes high
	StrobeSFRX    Strobe = 0x3A // Flush the RX FIFO buffer
	StrobeSFTX    Strobe = 0x3B // Flush the TX FIFO buffer
	StrobeSWORRST Strobe = 0x3C // Reset real time clock
	StrobeSNOP    Strobe = 0x3D // No operation
)

// SPI header bits
const (
	headerWrite      = 0x00
	headerWriteBurst = 0x40
	headerRead       = 0x80
	headerReadBurst  = 0xC0
)

// RXBYTES bits
const (
	RXBytesOverflow = 0x80
	RXBytesMask     = 0x7F
)

// PKTCTRL0 length configuration
const (
	PacketLengthFixed    = 0x00
	PacketLengthInfinite = 0x02
)

// GDOx pin functions
const (
	GDORXFIFOThreshold = 0x00 // Asserts when the RX FIFO is at or above threshold
	GDOSyncWord        = 0x06 // Asserts on sync word, deasserts at end of packet
	GDOHighImpedance   = 0x2E
)

// FIFOTHR threshold settings used during reception
const (
	FIFOThreshold4Bytes  = 0x00
	FIFOThreshold44Bytes = 0x0A
)

// FIFOSize is the depth of each FIFO in bytes
const FIFOSize = 64

// CrystalHz is the reference oscillator frequency
const CrystalHz = 26000000

// State represents the main radio control state (MARCSTATE)
type State uint8

const (
	StateSLEEP       State = 0x00
	StateIDLE        State = 0x01
	StateXOFF        State = 0x02
	StateVCOON_MC    State = 0x03
	StateREGON_MC    State = 0x04
	StateMAN_CAL     State = 0x05
	StateVCOON       State = 0x06
	StateREGON       State = 0x07
	StateSTARTCAL    State = 0x08
	StateBWBOOST     State = 0x09
	StateFS_LOCK     State = 0x0A
	StateIFADCON     State = 0x0B
	StateENDCAL      State = 0x0C
	StateRX          State = 0x0D
	StateRX_END      State = 0x0E
	StateRX_RST      State = 0x0F
	StateTXRX_SWITCH State = 0x10
	StateRXFIFO_OVF  State = 0x11
	StateFSTXON      State = 0x12
	StateTX          State = 0x13
	StateTX_END      State = 0x14
	StateRXTX_SWITCH State = 0x15
	StateTXFIFO_UNF  State = 0x16
)

var stateNames = map[State]string{
	StateSLEEP:       "SLEEP",
	StateIDLE:        "IDLE",
	StateXOFF:        "XOFF",
	StateVCOON_MC:    "VCOON_MC",
	StateREGON_MC:    "REGON_MC",
	StateMAN_CAL:     "MANCAL",
	StateVCOON:       "VCOON",
	StateREGON:       "REGON",
	StateSTARTCAL:    "STARTCAL",
	StateBWBOOST:     "BWBOOST",
	StateFS_LOCK:     "FS_LOCK",
	StateIFADCON:     "IFADCON",
	StateENDCAL:      "ENDCAL",
	StateRX:          "RX",
	StateRX_END:      "RX_END",
	StateRX_RST:      "RX_RST",
	StateTXRX_SWITCH: "TXRX_SWITCH",
	StateRXFIFO_OVF:  "RXFIFO_OVERFLOW",
	StateFSTXON:      "FSTXON",
	StateTX:          "TX",
	StateTX_END:      "TX_END",
	StateRXTX_SWITCH: "RXTX_SWITCH",
	StateTXFIFO_UNF:  "TXFIFO_UNDERFLOW",
}

// String returns a human-readable name for the radio state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
