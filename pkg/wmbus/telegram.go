package wmbus

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Link-layer header offsets
const (
	offsetL  = 0
	offsetC  = 1
	offsetM  = 2
	offsetA  = 4
	offsetV  = 8
	offsetT  = 9
	offsetCI = 10

	headerSize = 11
)

// CI fields with a transport layer header
const (
	CILongTPL  = 0x72
	CIShortTPL = 0x7A
	CINoTPL    = 0x78
)

// Address identifies a meter: manufacturer, serial number, version and device type
type Address struct {
	ID           string `json:"id"`
	Manufacturer uint16 `json:"manufacturer"`
	Version      byte   `json:"version"`
	DeviceType   byte   `json:"device_type"`
}

// IDNumber returns the meter ID as the number printed on the meter label
func (a Address) IDNumber() (uint32, error) {
	id, err := strconv.ParseUint(a.ID, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid meter id %q: %w", a.ID, err)
	}
	return uint32(id), nil
}

// ManufacturerCode returns the three letter FLAG code, e.g. "KAM"
func (a Address) ManufacturerCode() string {
	return ManufacturerCode(a.Manufacturer)
}

// String returns a printable address
func (a Address) String() string {
	return fmt.Sprintf("%s.M=%s.V=%02x.T=%02x", a.ID, a.ManufacturerCode(), a.Version, a.DeviceType)
}

// ManufacturerCode decodes the 15-bit packed manufacturer field
func ManufacturerCode(m uint16) string {
	return string([]byte{
		byte(m>>10&0x1F) + 64,
		byte(m>>5&0x1F) + 64,
		byte(m&0x1F) + 64,
	})
}

// ManufacturerID packs a three letter FLAG code into the manufacturer field
func ManufacturerID(code string) uint16 {
	if len(code) != 3 {
		return 0
	}
	return uint16(code[0]-64)<<10 | uint16(code[1]-64)<<5 | uint16(code[2]-64)
}

func parseAddress(id []byte, m uint16, version, deviceType byte) Address {
	return Address{
		ID:           fmt.Sprintf("%02x%02x%02x%02x", id[3], id[2], id[1], id[0]),
		Manufacturer: m,
		Version:      version,
		DeviceType:   deviceType,
	}
}

// Telegram is a link-layer frame split into its header fields
type Telegram struct {
	Raw          []byte
	Length       byte
	Control      byte
	CI           byte
	Addresses    []Address
	AccessNumber byte
	Status       byte
	Config       uint16

	// PayloadOffset is the index in Raw of the first application byte
	PayloadOffset int
	Payload       []byte
}

// SecurityMode returns the security mode from the configuration word
func (t *Telegram) SecurityMode() byte {
	return byte(t.Config>>8) & 0x1F
}

// EncryptedBlocks returns the number of encrypted 16 byte blocks for mode 5
func (t *Telegram) EncryptedBlocks() int {
	return int(t.Config>>4) & 0x0F
}

// ParseHeader parses a link-layer frame with CRCs removed. The data link
// address comes first in Addresses, followed by the transport layer address
// when the CI field carries a long header.
func ParseHeader(raw []byte) (*Telegram, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(raw))
	}
	if int(raw[offsetL])+1 > len(raw) {
		return nil, fmt.Errorf("%w: L=%d, %d bytes", ErrLengthMismatch, raw[offsetL], len(raw))
	}
	raw = raw[:int(raw[offsetL])+1]

	t := &Telegram{
		Raw:     raw,
		Length:  raw[offsetL],
		Control: raw[offsetC],
		CI:      raw[offsetCI],
	}
	t.Addresses = append(t.Addresses, parseAddress(
		raw[offsetA:offsetA+4],
		binary.LittleEndian.Uint16(raw[offsetM:offsetM+2]),
		raw[offsetV],
		raw[offsetT],
	))

	cursor := headerSize
	switch t.CI {
	case CILongTPL:
		if len(raw) < cursor+12 {
			return nil, fmt.Errorf("%w: long transport header truncated", ErrShortFrame)
		}
		h := raw[cursor:]
		t.Addresses = append(t.Addresses, parseAddress(h[0:4], binary.LittleEndian.Uint16(h[4:6]), h[6], h[7]))
		t.AccessNumber = h[8]
		t.Status = h[9]
		t.Config = binary.LittleEndian.Uint16(h[10:12])
		cursor += 12
	case CIShortTPL:
		if len(raw) < cursor+4 {
			return nil, fmt.Errorf("%w: short transport header truncated", ErrShortFrame)
		}
		h := raw[cursor:]
		t.AccessNumber = h[0]
		t.Status = h[1]
		t.Config = binary.LittleEndian.Uint16(h[2:4])
		cursor += 4
	}

	t.PayloadOffset = cursor
	t.Payload = raw[cursor:]
	return t, nil
}

// MeterAddress returns the address that identifies the meter: the transport
// layer address when present, otherwise the data link address.
func (t *Telegram) MeterAddress() (Address, error) {
	if len(t.Addresses) == 0 {
		return Address{}, ErrNoAddress
	}
	return t.Addresses[len(t.Addresses)-1], nil
}
