// Package wmbus implements the wireless M-Bus link layer: the Mode T
// 3-out-of-6 line code, block length arithmetic, CRC handling and the
// telegram header.
package wmbus

import "fmt"

// invalidSymbol marks a 6-bit pattern that is not a code word
const invalidSymbol = 0xFF

// encodeTable maps a nibble to its 6-bit code word
var encodeTable = [16]byte{
	0x16, 0x0D, 0x0E, 0x0B, 0x1C, 0x19, 0x1A, 0x13,
	0x2C, 0x25, 0x26, 0x23, 0x34, 0x31, 0x32, 0x29,
}

// decodeTable maps every 6-bit pattern to a nibble or invalidSymbol
var decodeTable = func() [64]byte {
	var t [64]byte
	for i := range t {
		t[i] = invalidSymbol
	}
	for nibble, code := range encodeTable {
		t[code] = byte(nibble)
	}
	return t
}()

// Decode3of6Symbol decodes one 6-bit code word into a nibble.
// The second return value is false when code is not a valid code word.
func Decode3of6Symbol(code byte) (byte, bool) {
	if code > 0x3F {
		return 0, false
	}
	nibble := decodeTable[code]
	if nibble == invalidSymbol {
		return 0, false
	}
	return nibble, true
}

// Decode3of6 decodes a Mode T bit stream. Every 3 encoded bytes carry 2 data
// bytes; a trailing pair of encoded bytes carries a final data byte.
func Decode3of6(encoded []byte) ([]byte, error) {
	out := make([]byte, 0, len(encoded)*2/3+1)
	i := 0
	for ; i+3 <= len(encoded); i += 3 {
		b0, b1, b2 := encoded[i], encoded[i+1], encoded[i+2]
		hi, err := decodePair(b0>>2, (b0&0x03)<<4|b1>>4)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i, err)
		}
		lo, err := decodePair((b1&0x0F)<<2|b2>>6, b2&0x3F)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i+1, err)
		}
		out = append(out, hi, lo)
	}

	switch len(encoded) - i {
	case 0:
	case 2:
		b0, b1 := encoded[i], encoded[i+1]
		last, err := decodePair(b0>>2, (b0&0x03)<<4|b1>>4)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i, err)
		}
		out = append(out, last)
	default:
		return nil, ErrTruncated
	}
	return out, nil
}

func decodePair(high, low byte) (byte, error) {
	h, ok := Decode3of6Symbol(high)
	if !ok {
		return 0, ErrInvalidSymbol
	}
	l, ok := Decode3of6Symbol(low)
	if !ok {
		return 0, ErrInvalidSymbol
	}
	return h<<4 | l, nil
}

// Encode3of6 encodes data bytes into the Mode T line code. An odd number of
// data bytes is padded to a whole encoded byte with zero bits.
func Encode3of6(data []byte) []byte {
	out := make([]byte, 0, ByteSize(len(data)))
	for i := 0; i < len(data); i += 2 {
		c0 := encodeTable[data[i]>>4]
		c1 := encodeTable[data[i]&0x0F]
		if i+1 == len(data) {
			out = append(out, c0<<2|c1>>4, (c1&0x0F)<<4)
			break
		}
		c2 := encodeTable[data[i+1]>>4]
		c3 := encodeTable[data[i+1]&0x0F]
		out = append(out, c0<<2|c1>>4, (c1&0x0F)<<4|c2>>2, (c2&0x03)<<6|c3)
	}
	return out
}

// PacketSize returns the number of bytes in a format A frame with the given
// L-field, counting the L-field itself and two CRC bytes per block. The first
// block holds 10 bytes, later blocks 16.
func PacketSize(lField byte) int {
	l := int(lField)
	blocks := 2
	if l >= 26 {
		blocks = (l-26)/16 + 3
	}
	return l + 1 + 2*blocks
}

// ByteSize returns the number of encoded bytes needed to carry packetSize
// data bytes in the 3-out-of-6 line code.
func ByteSize(packetSize int) int {
	size := packetSize * 3 / 2
	if packetSize%2 != 0 {
		size++
	}
	return size
}
