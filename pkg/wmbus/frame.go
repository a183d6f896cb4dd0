package wmbus

import (
	"fmt"
	"time"
)

// Preamble bytes that open a Mode C frame after the sync word
const (
	ModeCPreamble  = 0x54
	BlockAPreamble = 0xCD
	BlockBPreamble = 0x3D
)

// Mode is the radio link mode a frame was received in
type Mode byte

const (
	ModeUnknown Mode = 'X'
	ModeT       Mode = 'T'
	ModeC       Mode = 'C'
)

// String returns the single letter name of the mode
func (m Mode) String() string {
	switch m {
	case ModeT, ModeC:
		return string(rune(m))
	default:
		return "X"
	}
}

// Block is the frame format, A or B
type Block byte

const (
	BlockUnknown Block = 'X'
	BlockA       Block = 'A'
	BlockB       Block = 'B'
)

// String returns the single letter name of the block format
func (b Block) String() string {
	switch b {
	case BlockA, BlockB:
		return string(rune(b))
	default:
		return "X"
	}
}

// FrameMetadata describes how a frame was received
type FrameMetadata struct {
	RSSI        int       `json:"rssi"`
	LQI         byte      `json:"lqi"`
	Mode        Mode      `json:"mode"`
	Block       Block     `json:"block"`
	LengthField byte      `json:"length_field"`
	ReceivedAt  time.Time `json:"received_at"`
}

// RawFrame is a complete frame as read from the radio FIFO. Data holds every
// byte the receiver counted, including a Mode C preamble; Mode T data is still
// 3-out-of-6 encoded.
type RawFrame struct {
	Data []byte
	FrameMetadata
}

// Tag returns the link mode and block as printed in logs, e.g. "T1 A"
func (f RawFrame) Tag() string {
	return fmt.Sprintf("%s1 %s", f.Mode, f.Block)
}

// LinkLayer decodes the frame into link-layer bytes with CRCs removed,
// starting with the L-field.
func (f RawFrame) LinkLayer() ([]byte, error) {
	switch {
	case f.Mode == ModeT:
		decoded, err := Decode3of6(f.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mode T frame: %w", err)
		}
		return StripFormatA(decoded)
	case f.Mode == ModeC && f.Block == BlockA:
		if len(f.Data) < 3 {
			return nil, ErrShortFrame
		}
		return StripFormatA(f.Data[2:])
	case f.Mode == ModeC && f.Block == BlockB:
		if len(f.Data) < 3 {
			return nil, ErrShortFrame
		}
		return StripFormatB(f.Data[2:])
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, f.Tag())
	}
}
