package wmbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleLinkLayer is a short-header telegram from meter 12345678, KAM
func sampleLinkLayer() []byte {
	payload := []byte{0x0C, 0x13, 0x45, 0x23, 0x01, 0x00, 0x02, 0xFD, 0x17, 0x00, 0x00}
	raw := []byte{0x00, 0x44, 0x2D, 0x2C, 0x78, 0x56, 0x34, 0x12, 0x1B, 0x16, CIShortTPL, 0x2A, 0x00, 0x00, 0x00}
	raw = append(raw, payload...)
	raw[0] = byte(len(raw) - 1)
	return raw
}

func TestCRCCheckValue(t *testing.T) {
	assert.Equal(t, uint16(0xC2B7), CRC([]byte("123456789")))
}

func TestFormatARoundTrip(t *testing.T) {
	link := sampleLinkLayer()
	withCRC := AppendFormatA(link)
	assert.Len(t, withCRC, PacketSize(link[0]))

	stripped, err := StripFormatA(withCRC)
	require.NoError(t, err)
	assert.Equal(t, link, stripped)

	withCRC[3] ^= 0xFF
	_, err = StripFormatA(withCRC)
	assert.ErrorIs(t, err, ErrCRC)

	_, err = StripFormatA(withCRC[:8])
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestFormatBStrip(t *testing.T) {
	link := sampleLinkLayer()
	frame := append([]byte{}, link...)
	frame[0] += 2
	crc := CRC(frame)
	frame = append(frame, byte(crc>>8), byte(crc))

	stripped, err := StripFormatB(frame)
	require.NoError(t, err)
	assert.Equal(t, link, stripped)

	frame[5] ^= 0x01
	_, err = StripFormatB(frame)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestFormatBStripLong(t *testing.T) {
	frame := make([]byte, 150)
	for i := range frame {
		frame[i] = byte(i)
	}
	frame[0] = byte(len(frame) - 1)
	crc := CRC(frame[:formatBSplit])
	frame[formatBSplit], frame[formatBSplit+1] = byte(crc>>8), byte(crc)
	crc = CRC(frame[formatBSplit+2 : len(frame)-2])
	frame[len(frame)-2], frame[len(frame)-1] = byte(crc>>8), byte(crc)

	stripped, err := StripFormatB(frame)
	require.NoError(t, err)
	assert.Len(t, stripped, len(frame)-4)
	assert.Equal(t, byte(len(stripped)-1), stripped[0])
	assert.Equal(t, frame[formatBSplit+2], stripped[formatBSplit])
}

func TestFormatBStripBadLength(t *testing.T) {
	for _, l := range []byte{0x00, 0x01, firstBlockSize, formatBSplit + 2} {
		frame := make([]byte, 200)
		frame[0] = l
		assert.NotPanics(t, func() {
			_, err := StripFormatB(frame)
			assert.ErrorIs(t, err, ErrShortFrame, "L-field 0x%02X", l)
		})
	}

	f := RawFrame{Data: append([]byte{ModeCPreamble, BlockBPreamble}, make([]byte, 12)...)}
	f.Mode, f.Block = ModeC, BlockB
	_, err := f.LinkLayer()
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestRawFrameLinkLayer(t *testing.T) {
	link := sampleLinkLayer()
	formatA := AppendFormatA(link)

	t.Run("mode T", func(t *testing.T) {
		f := RawFrame{Data: Encode3of6(formatA)}
		f.Mode, f.Block = ModeT, BlockA
		got, err := f.LinkLayer()
		require.NoError(t, err)
		assert.Equal(t, link, got)
	})

	t.Run("mode C block A", func(t *testing.T) {
		f := RawFrame{Data: append([]byte{ModeCPreamble, BlockAPreamble}, formatA...)}
		f.Mode, f.Block = ModeC, BlockA
		assert.Len(t, f.Data, 2+PacketSize(link[0]))
		got, err := f.LinkLayer()
		require.NoError(t, err)
		assert.Equal(t, link, got)
	})

	t.Run("unknown mode", func(t *testing.T) {
		f := RawFrame{Data: formatA}
		f.Mode, f.Block = ModeUnknown, BlockUnknown
		_, err := f.LinkLayer()
		assert.ErrorIs(t, err, ErrUnknownMode)
	})

	t.Run("mode T with broken symbols", func(t *testing.T) {
		f := RawFrame{Data: make([]byte, 23)}
		f.Mode, f.Block = ModeT, BlockA
		_, err := f.LinkLayer()
		assert.ErrorIs(t, err, ErrInvalidSymbol)
	})
}

func TestParseHeaderShortTPL(t *testing.T) {
	tel, err := ParseHeader(sampleLinkLayer())
	require.NoError(t, err)

	require.Len(t, tel.Addresses, 1)
	addr := tel.Addresses[0]
	assert.Equal(t, "12345678", addr.ID)
	assert.Equal(t, "KAM", addr.ManufacturerCode())
	assert.Equal(t, byte(0x1B), addr.Version)
	assert.Equal(t, byte(0x16), addr.DeviceType)

	id, err := addr.IDNumber()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), id)

	assert.Equal(t, byte(0x44), tel.Control)
	assert.Equal(t, byte(CIShortTPL), tel.CI)
	assert.Equal(t, byte(0x2A), tel.AccessNumber)
	assert.Equal(t, 15, tel.PayloadOffset)
	assert.Equal(t, byte(0x0C), tel.Payload[0])
	assert.Equal(t, byte(0), tel.SecurityMode())
}

func TestParseHeaderLongTPL(t *testing.T) {
	raw := []byte{
		0x00, 0x44, 0x2D, 0x2C, 0x11, 0x11, 0x11, 0x11, 0x01, 0x07,
		CILongTPL,
		0x78, 0x56, 0x34, 0x12, 0x2D, 0x2C, 0x1B, 0x16,
		0x07, 0x00, 0x10, 0x05,
		0x2F, 0x2F,
	}
	raw[0] = byte(len(raw) - 1)

	tel, err := ParseHeader(raw)
	require.NoError(t, err)
	require.Len(t, tel.Addresses, 2)
	assert.Equal(t, "11111111", tel.Addresses[0].ID)
	assert.Equal(t, "12345678", tel.Addresses[1].ID)
	assert.Equal(t, byte(5), tel.SecurityMode())
	assert.Equal(t, 1, tel.EncryptedBlocks())

	meter, err := tel.MeterAddress()
	require.NoError(t, err)
	assert.Equal(t, "12345678", meter.ID)
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := ParseHeader([]byte{0x01, 0x44})
	assert.ErrorIs(t, err, ErrShortFrame)

	raw := sampleLinkLayer()
	raw[0] = 0xF0
	_, err = ParseHeader(raw)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	raw = sampleLinkLayer()[:13]
	raw[0] = 12
	raw[offsetCI] = CILongTPL
	_, err = ParseHeader(raw)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestManufacturerCode(t *testing.T) {
	assert.Equal(t, uint16(0x2C2D), ManufacturerID("KAM"))
	assert.Equal(t, "KAM", ManufacturerCode(0x2C2D))
	assert.Equal(t, uint16(0), ManufacturerID("TOOLONG"))
}
