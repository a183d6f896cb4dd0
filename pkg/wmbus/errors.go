package wmbus

import "errors"

// Decoding errors
var (
	// ErrInvalidSymbol indicates a 6-bit pattern outside the 3-out-of-6 code book
	ErrInvalidSymbol = errors.New("invalid 3-out-of-6 symbol")

	// ErrTruncated indicates the encoded input ended in the middle of a symbol group
	ErrTruncated = errors.New("encoded data truncated")

	// ErrShortFrame indicates a frame too short to hold a link-layer header
	ErrShortFrame = errors.New("frame too short")

	// ErrLengthMismatch indicates the L-field disagrees with the number of bytes received
	ErrLengthMismatch = errors.New("length field does not match frame size")

	// ErrCRC indicates a block CRC check failed
	ErrCRC = errors.New("CRC check failed")

	// ErrUnknownMode indicates a frame without a recognized mode/block tag
	ErrUnknownMode = errors.New("unknown frame mode")

	// ErrNoAddress indicates a telegram header without any address
	ErrNoAddress = errors.New("telegram has no address")
)
