package meters

import "errors"

var (
	// ErrUnknownDriver indicates a driver name that was never registered
	ErrUnknownDriver = errors.New("unknown driver")

	// ErrTruncatedRecord indicates a data record cut off by the end of the payload
	ErrTruncatedRecord = errors.New("data record truncated")

	// ErrUnsupportedRecord indicates a data record coding the decoder does not handle
	ErrUnsupportedRecord = errors.New("unsupported data record")

	// ErrSecurityMode indicates a security mode other than none or AES-CBC with IV
	ErrSecurityMode = errors.New("unsupported security mode")

	// ErrNoKey indicates an encrypted telegram for a meter without a key
	ErrNoKey = errors.New("telegram is encrypted but no key is configured")

	// ErrKeySize indicates a key that is not 16 bytes
	ErrKeySize = errors.New("AES key must be 16 bytes")

	// ErrDecrypt indicates the decrypted payload did not start with the 2F2F check bytes
	ErrDecrypt = errors.New("decryption failed, wrong key?")
)
