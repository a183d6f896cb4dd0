package dispatch

import "errors"

// Dispatch errors
var (
	// ErrNoDriver indicates that neither the registration nor the catalog named a driver
	ErrNoDriver = errors.New("no driver for telegram")

	// ErrLinkMode indicates the driver does not support the frame link mode
	ErrLinkMode = errors.New("link mode not supported by driver")

	// ErrNotForMe indicates the meter driver did not accept the telegram address
	ErrNotForMe = errors.New("telegram not for this meter")

	// ErrInvalidKey indicates a decryption key that is not hex
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidMeterID indicates a meter ID that is not 8 hex digits
	ErrInvalidMeterID = errors.New("invalid meter id")
)
