package meters

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

// Function is the DIF function field
type Function uint8

const (
	FunctionInstantaneous Function = iota
	FunctionMaximum
	FunctionMinimum
	FunctionError
)

// DIF data field codings
const (
	difNoData      = 0x0
	difInt8        = 0x1
	difInt16       = 0x2
	difInt24       = 0x3
	difInt32       = 0x4
	difReal32      = 0x5
	difInt48       = 0x6
	difInt64       = 0x7
	difSelection   = 0x8
	difBCD2        = 0x9
	difBCD4        = 0xA
	difBCD6        = 0xB
	difBCD8        = 0xC
	difVariable    = 0xD
	difBCD12       = 0xE
	difSpecial     = 0xF
	difIdleFiller  = 0x2F
	difExtension   = 0x80
	vifExtension   = 0x80
	vifPlainText   = 0x7C
	vifFirstExtTbl = 0xFD
	vifSecondTbl   = 0xFB
	vifManufact    = 0xFF
)

// Record is one decoded data record
type Record struct {
	DIF      byte
	VIF      byte
	Storage  int
	Tariff   int
	Function Function

	// Name is the field name the record is published under, empty when the
	// VIF is not decoded
	Name  string
	Value float64
	Unit  wmbus.Unit
	// Text holds dates and plain text values
	Text string
}

// IsText reports whether the record carries text rather than a number
func (r Record) IsText() bool {
	return r.Text != ""
}

// dataLength returns the number of data bytes for a DIF data field
func dataLength(field byte) int {
	switch field {
	case difInt8, difBCD2:
		return 1
	case difInt16, difBCD4:
		return 2
	case difInt24, difBCD6:
		return 3
	case difInt32, difReal32, difBCD8:
		return 4
	case difInt48, difBCD12:
		return 6
	case difInt64:
		return 8
	}
	return 0
}

// ParseRecords decodes the DIF/VIF data records of an application payload.
// Idle fillers are skipped and manufacturer specific data ends the list.
func ParseRecords(payload []byte) ([]Record, error) {
	var records []Record
	pos := 0
	for pos < len(payload) {
		dif := payload[pos]
		pos++
		if dif == difIdleFiller {
			continue
		}
		if dif&0x0F == difSpecial {
			break
		}

		r := Record{
			DIF:      dif,
			Storage:  int(dif>>6) & 0x01,
			Function: Function(dif>>4) & 0x03,
		}

		ext := dif
		for shift := 0; ext&difExtension != 0; shift++ {
			if pos >= len(payload) {
				return records, fmt.Errorf("%w: DIFE at %d", ErrTruncatedRecord, pos)
			}
			dife := payload[pos]
			pos++
			r.Storage |= int(dife&0x0F) << (1 + 4*shift)
			r.Tariff |= int(dife>>4&0x03) << (2 * shift)
			ext = dife
		}

		if pos >= len(payload) {
			return records, fmt.Errorf("%w: VIF at %d", ErrTruncatedRecord, pos)
		}
		r.VIF = payload[pos]
		pos++
		n, err := skipExtensions(payload[pos:], r.VIF)
		if err != nil {
			return records, err
		}
		pos += n
		if r.VIF == vifPlainText|vifExtension || r.VIF == vifPlainText {
			if pos >= len(payload) {
				return records, fmt.Errorf("%w: plain text VIF", ErrTruncatedRecord)
			}
			pos += 1 + int(payload[pos])
		}

		var data []byte
		field := dif & 0x0F
		switch field {
		case difVariable:
			if pos >= len(payload) {
				return records, fmt.Errorf("%w: LVAR at %d", ErrTruncatedRecord, pos)
			}
			size := int(payload[pos])
			pos++
			if size > 0xBF {
				return records, fmt.Errorf("%w: LVAR 0x%02X", ErrUnsupportedRecord, size)
			}
			if pos+size > len(payload) {
				return records, fmt.Errorf("%w: text at %d", ErrTruncatedRecord, pos)
			}
			data = payload[pos : pos+size]
			pos += size
		default:
			size := dataLength(field)
			if pos+size > len(payload) {
				return records, fmt.Errorf("%w: %d data bytes at %d", ErrTruncatedRecord, size, pos)
			}
			data = payload[pos : pos+size]
			pos += size
		}

		decodeValue(&r, field, r.VIF&^vifExtension, data)
		records = append(records, r)
	}
	return records, nil
}

// skipExtensions returns the length of the VIFE chain following vif
func skipExtensions(b []byte, vif byte) (int, error) {
	if vif&vifExtension == 0 {
		return 0, nil
	}
	n := 0
	for {
		if n >= len(b) {
			return n, fmt.Errorf("%w: VIFE", ErrTruncatedRecord)
		}
		v := b[n]
		n++
		if v&vifExtension == 0 {
			return n, nil
		}
	}
}

func decodeValue(r *Record, field, vif byte, data []byte) {
	if field == difVariable {
		r.Text = reversedText(data)
		return
	}
	if field == difSelection || field == difNoData {
		return
	}
	if r.VIF == vifFirstExtTbl || r.VIF == vifSecondTbl || r.VIF == vifManufact {
		return
	}

	switch {
	case vif == 0x6C && field == difInt16:
		r.Name = fieldName("date", r.Function, r.Storage, r.Tariff)
		r.Text = dateG(data)
		return
	case vif == 0x6D && field == difInt32:
		r.Name = fieldName("datetime", r.Function, r.Storage, r.Tariff)
		r.Text = dateTimeF(data)
		return
	}

	raw, ok := rawNumber(field, data)
	if !ok {
		return
	}
	name, unit, exp, known := vifQuantity(vif)
	if !known {
		return
	}
	r.Name = fieldName(name, r.Function, r.Storage, r.Tariff)
	r.Unit = unit
	r.Value = raw * math.Pow10(exp)
	if unit == wmbus.UnitHour {
		r.Value = raw * timeScale(vif)
	}
}

// vifQuantity maps a primary VIF to a field name, unit and decimal exponent
func vifQuantity(vif byte) (string, wmbus.Unit, int, bool) {
	n := int(vif & 0x07)
	switch {
	case vif <= 0x07:
		return "total_energy", wmbus.UnitKWH, n - 6, true
	case vif <= 0x0F:
		return "total_energy", wmbus.UnitMJ, n - 6, true
	case vif <= 0x17:
		return "total_volume", wmbus.UnitM3, n - 6, true
	case vif >= 0x20 && vif <= 0x23:
		return "on_time", wmbus.UnitHour, 0, true
	case vif >= 0x24 && vif <= 0x27:
		return "operating_time", wmbus.UnitHour, 0, true
	case vif >= 0x28 && vif <= 0x2F:
		return "power", wmbus.UnitKW, n - 6, true
	case vif >= 0x38 && vif <= 0x3F:
		return "volume_flow", wmbus.UnitM3H, n - 6, true
	case vif >= 0x58 && vif <= 0x5B:
		return "flow_temperature", wmbus.UnitC, int(vif&0x03) - 3, true
	case vif >= 0x5C && vif <= 0x5F:
		return "return_temperature", wmbus.UnitC, int(vif&0x03) - 3, true
	case vif >= 0x64 && vif <= 0x67:
		return "external_temperature", wmbus.UnitC, int(vif&0x03) - 3, true
	case vif == 0x6E:
		return "consumption", wmbus.UnitHCA, 0, true
	}
	return "", wmbus.UnitUnknown, 0, false
}

// timeScale converts the on/operating time unit code into hours
func timeScale(vif byte) float64 {
	switch vif & 0x03 {
	case 0:
		return 1.0 / 3600
	case 1:
		return 1.0 / 60
	case 3:
		return 24
	}
	return 1
}

// fieldName qualifies a quantity with function, storage and tariff
func fieldName(base string, fn Function, storage, tariff int) string {
	name := base
	switch fn {
	case FunctionMaximum:
		name = "max_" + name
	case FunctionMinimum:
		name = "min_" + name
	case FunctionError:
		name = "error_" + name
	}
	switch {
	case storage == 1:
		name = "target_" + name
	case storage > 1:
		name = fmt.Sprintf("%s_storage_%d", name, storage)
	}
	if tariff > 0 {
		name = fmt.Sprintf("%s_tariff_%d", name, tariff)
	}
	return name
}

func rawNumber(field byte, data []byte) (float64, bool) {
	switch field {
	case difInt8:
		return float64(int8(data[0])), true
	case difInt16:
		return float64(int16(binary.LittleEndian.Uint16(data))), true
	case difInt24:
		v := int32(data[0]) | int32(data[1])<<8 | int32(int8(data[2]))<<16
		return float64(v), true
	case difInt32:
		return float64(int32(binary.LittleEndian.Uint32(data))), true
	case difInt48:
		v := int64(binary.LittleEndian.Uint32(data)) | int64(int16(binary.LittleEndian.Uint16(data[4:])))<<32
		return float64(v), true
	case difInt64:
		return float64(int64(binary.LittleEndian.Uint64(data))), true
	case difReal32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), true
	case difBCD2, difBCD4, difBCD6, difBCD8, difBCD12:
		return bcd(data)
	}
	return 0, false
}

// bcd decodes little endian packed BCD. A high nibble of 0xF in the last
// byte marks a negative value.
func bcd(data []byte) (float64, bool) {
	var v float64
	negative := false
	for i := len(data) - 1; i >= 0; i-- {
		hi, lo := data[i]>>4, data[i]&0x0F
		if i == len(data)-1 && hi == 0x0F {
			negative = true
			hi = 0
		}
		if hi > 9 || lo > 9 {
			return 0, false
		}
		v = v*100 + float64(hi)*10 + float64(lo)
	}
	if negative {
		v = -v
	}
	return v, true
}

// dateG decodes a type G date
func dateG(b []byte) string {
	day := b[0] & 0x1F
	month := b[1] & 0x0F
	year := int(b[0]&0xE0)>>5 | int(b[1]&0xF0)>>1
	return fmt.Sprintf("%04d-%02d-%02d", 2000+year, month, day)
}

// dateTimeF decodes a type F date and time
func dateTimeF(b []byte) string {
	minute := b[0] & 0x3F
	hour := b[1] & 0x1F
	day := b[2] & 0x1F
	month := b[3] & 0x0F
	year := int(b[2]&0xE0)>>5 | int(b[3]&0xF0)>>1
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", 2000+year, month, day, hour, minute)
}

// reversedText decodes a variable length string, sent last character first
func reversedText(b []byte) string {
	var sb strings.Builder
	for i := len(b) - 1; i >= 0; i-- {
		sb.WriteByte(b[i])
	}
	return sb.String()
}
