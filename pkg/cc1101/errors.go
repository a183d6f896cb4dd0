package cc1101

import "errors"

// Chip errors
var (
	// ErrNoBus indicates the chip has no SPI bus attached
	ErrNoBus = errors.New("no SPI bus attached")

	// ErrChipNotFound indicates the chip did not answer with a plausible version
	ErrChipNotFound = errors.New("CC1101 not found")

	// ErrStateTimeout indicates the radio did not reach the requested state in time
	ErrStateTimeout = errors.New("timeout waiting for radio state")

	// ErrUnknownProfile indicates a profile name with no definition
	ErrUnknownProfile = errors.New("unknown radio profile")
)
