package ch341

import "math/bits"

// USB identity of the CH341A in serial/parallel mode
const (
	VendorID  = 0x1A86
	ProductID = 0x5512
)

// Bulk endpoints of interface 0
const (
	endpointOut = 2 // 0x02
	endpointIn  = 2 // 0x82
)

// Stream commands
const (
	cmdGetInput  = 0xA0
	cmdSPIStream = 0xA8
	cmdI2CStream = 0xAA
	cmdUIOStream = 0xAB

	i2cSet = 0x60
	i2cEnd = 0x00

	uioOut = 0x80
	uioDir = 0x40
	uioEnd = 0x20

	// speed 1 sets the 100 kHz I2C rate, which also selects the SPI clock
	spiSpeed = 0x01
)

// Pin levels of the D0-D5 outputs: D0 is chip select, D3 clock, D5 MOSI
const (
	pinsIdle   = 0x37
	pinsSelect = 0x36
	pinsDir    = 0x3F
)

// Bits of the input status word returned by cmdGetInput
const (
	InputERR  = 8
	InputPEMP = 9
	InputINT  = 10
	InputSLCT = 11
)

// packetSize is the largest bulk transfer the chip accepts, command byte included
const packetSize = 32

const inputStatusSize = 6

func speedCommand() []byte {
	return []byte{cmdI2CStream, i2cSet | spiSpeed, i2cEnd}
}

func pinCommand(level byte) []byte {
	return []byte{cmdUIOStream, uioOut | level, uioDir | pinsDir, uioEnd}
}

// reverse converts between MSB first and the LSB first order the chip
// shifts in
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = bits.Reverse8(v)
	}
	return out
}

// spiPackets splits w into SPI stream packets of at most packetSize bytes
func spiPackets(w []byte) [][]byte {
	var packets [][]byte
	for off := 0; off < len(w); off += packetSize - 1 {
		end := min(off+packetSize-1, len(w))
		p := make([]byte, 0, end-off+1)
		p = append(p, cmdSPIStream)
		p = append(p, reverse(w[off:end])...)
		packets = append(packets, p)
	}
	return packets
}

// inputLevel reports whether bit is high in the input status
func inputLevel(status []byte, bit int) bool {
	if len(status) < 4 {
		return false
	}
	word := uint32(status[0]) | uint32(status[1])<<8 | uint32(status[2])<<16 | uint32(status[3])<<24
	return word&(1<<bit) != 0
}
