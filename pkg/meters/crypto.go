package meters

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

// SecurityAESCBC is security mode 5, AES-128-CBC with a telegram derived IV
const SecurityAESCBC = 5

// decryptCheck are the first two plaintext bytes of a correctly decrypted payload
var decryptCheck = [2]byte{0x2F, 0x2F}

// iv builds the mode 5 initialisation vector: manufacturer, address, version
// and device type of the meter followed by eight copies of the access number.
func iv(t *wmbus.Telegram) []byte {
	iv := make([]byte, 0, aes.BlockSize)
	if t.CI == wmbus.CILongTPL {
		h := t.Raw[t.PayloadOffset-12:]
		iv = append(iv, h[4], h[5], h[0], h[1], h[2], h[3], h[6], h[7])
	} else {
		iv = append(iv, t.Raw[2:10]...)
	}
	for len(iv) < aes.BlockSize {
		iv = append(iv, t.AccessNumber)
	}
	return iv
}

// DecryptPayload returns the application payload of t in clear text. The
// encrypted blocks are decrypted in place of a copy; trailing unencrypted
// bytes are kept.
func DecryptPayload(t *wmbus.Telegram, key []byte) ([]byte, error) {
	switch t.SecurityMode() {
	case 0:
		return t.Payload, nil
	case SecurityAESCBC:
	default:
		return nil, fmt.Errorf("%w: %d", ErrSecurityMode, t.SecurityMode())
	}

	n := t.EncryptedBlocks() * aes.BlockSize
	if n == 0 {
		return t.Payload, nil
	}
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	if n > len(t.Payload) {
		return nil, fmt.Errorf("%w: %d encrypted bytes, payload has %d", ErrTruncatedRecord, n, len(t.Payload))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(t.Payload))
	copy(out, t.Payload)
	cipher.NewCBCDecrypter(block, iv(t)).CryptBlocks(out[:n], out[:n])

	if out[0] != decryptCheck[0] || out[1] != decryptCheck[1] {
		return nil, ErrDecrypt
	}
	return out, nil
}

// EncryptPayload is the inverse of DecryptPayload, used to build test telegrams
func EncryptPayload(t *wmbus.Telegram, key, plain []byte) ([]byte, error) {
	if len(plain)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plain text must be a multiple of %d bytes", aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv(t)).CryptBlocks(out, plain)
	return out, nil
}
