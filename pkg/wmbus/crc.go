package wmbus

import "fmt"

const (
	crcPolynomial = 0x3D65
	crcFinalXOR   = 0xFFFF

	// Format A: a 10 byte first block, then 16 byte blocks, each followed by a CRC
	firstBlockSize = 10
	blockSize      = 16

	// Format B: the first CRC closes byte 126 of a long frame
	formatBSplit = 126
)

var crcTable = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC computes the EN 13757 CRC-16 over data.
func CRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc ^ crcFinalXOR
}

func checkCRC(block []byte, crc []byte) bool {
	return CRC(block) == uint16(crc[0])<<8|uint16(crc[1])
}

// StripFormatA verifies and removes the block CRCs of a format A frame
// starting with the L-field. The result holds L+1 bytes.
func StripFormatA(frame []byte) ([]byte, error) {
	if len(frame) < firstBlockSize+2 {
		return nil, ErrShortFrame
	}
	total := int(frame[0]) + 1
	out := make([]byte, 0, total)

	pos := 0
	size := firstBlockSize
	for len(out) < total {
		if remaining := total - len(out); remaining < size {
			size = remaining
		}
		if pos+size+2 > len(frame) {
			return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortFrame, pos+size+2, len(frame))
		}
		block := frame[pos : pos+size]
		if !checkCRC(block, frame[pos+size:pos+size+2]) {
			return nil, fmt.Errorf("%w: block at offset %d", ErrCRC, pos)
		}
		out = append(out, block...)
		pos += size + 2
		size = blockSize
	}
	return out, nil
}

// StripFormatB verifies and removes the CRCs of a format B frame starting
// with the L-field. The L-field of the result is rewritten to count the
// remaining bytes.
func StripFormatB(frame []byte) ([]byte, error) {
	if len(frame) < firstBlockSize+2 {
		return nil, ErrShortFrame
	}
	total := int(frame[0]) + 1
	if len(frame) < total {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortFrame, total, len(frame))
	}
	if total < firstBlockSize+2 || total == formatBSplit+3 {
		return nil, fmt.Errorf("%w: L-field 0x%02X", ErrShortFrame, frame[0])
	}
	frame = frame[:total]

	var out []byte
	if total <= formatBSplit+2 {
		if !checkCRC(frame[:total-2], frame[total-2:]) {
			return nil, ErrCRC
		}
		out = append(out, frame[:total-2]...)
	} else {
		if !checkCRC(frame[:formatBSplit], frame[formatBSplit:formatBSplit+2]) {
			return nil, fmt.Errorf("%w: second block", ErrCRC)
		}
		if !checkCRC(frame[formatBSplit+2:total-2], frame[total-2:]) {
			return nil, fmt.Errorf("%w: third block", ErrCRC)
		}
		out = append(out, frame[:formatBSplit]...)
		out = append(out, frame[formatBSplit+2:total-2]...)
	}
	out[0] = byte(len(out) - 1)
	return out, nil
}

// AppendFormatA splits link-layer bytes into format A blocks and appends
// each block CRC. It is the inverse of StripFormatA.
func AppendFormatA(linkLayer []byte) []byte {
	out := make([]byte, 0, PacketSize(linkLayer[0]))
	pos, size := 0, firstBlockSize
	for pos < len(linkLayer) {
		end := min(pos+size, len(linkLayer))
		crc := CRC(linkLayer[pos:end])
		out = append(out, linkLayer[pos:end]...)
		out = append(out, byte(crc>>8), byte(crc))
		pos, size = end, blockSize
	}
	return out
}
