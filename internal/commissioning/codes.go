package commissioning

import (
	"fmt"
	"strconv"
	"strings"
)

// base38Alphabet is the character set of the packed QR payload. Indices
// 0-9 map to digits, 10-35 to A-Z, then dash and dot.
const base38Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-."

const (
	// qrPrefix marks an onboarding payload captured from a QR code.
	qrPrefix = "MT:"

	// manualCodeLength is the digit count of a short manual pairing
	// code, check digit included.
	manualCodeLength = 11

	// maxPasscode is the ceiling for a 27-bit setup PIN. Values above
	// it cannot be produced by a conforming commissioner.
	maxPasscode = 99999998

	// qrPayloadBytes is the minimum decoded size of a QR payload:
	// 88 bits of packed fields, padded to whole bytes.
	qrPayloadBytes = 11
)

// Bit offsets and widths of the packed QR payload fields. The payload
// is a little-endian bit stream read least significant bit first.
const (
	versionOffset       = 0
	versionBits         = 3
	vendorOffset        = 3
	vendorBits          = 16
	productOffset       = 19
	productBits         = 16
	flowOffset          = 35
	flowBits            = 2
	capabilitiesOffset  = 37
	capabilitiesBits    = 8
	discriminatorOffset = 45
	discriminatorBits   = 12
	passcodeOffset      = 57
	passcodeBits        = 27
)

// trivialPasscodes are setup PINs a conforming device must never use.
// Codes carrying one are rejected before the backend sees them.
var trivialPasscodes = map[uint32]bool{
	11111111: true,
	22222222: true,
	33333333: true,
	44444444: true,
	55555555: true,
	66666666: true,
	77777777: true,
	88888888: true,
	99999999: true,
	12345678: true,
	87654321: true,
}

// PayloadKind distinguishes the two onboarding code formats.
type PayloadKind string

const (
	// PayloadManual is an 11-digit numeric pairing code.
	PayloadManual PayloadKind = "manual"

	// PayloadQR is a base38 payload scanned from a QR code.
	PayloadQR PayloadKind = "qr"
)

// Payload is a validated onboarding code with its decoded fields.
type Payload struct {
	// Kind identifies the source format.
	Kind PayloadKind

	// Code is the original string, forwarded verbatim to the backend.
	Code string

	// SetupPIN is the 27-bit passcode shared with the device.
	SetupPIN uint32

	// Discriminator narrows discovery to the advertising device. Manual
	// codes carry only the top four of its twelve bits; the low byte is
	// zero for them.
	Discriminator uint16

	// VendorID and ProductID identify the device model. Only QR
	// payloads carry them.
	VendorID  uint16
	ProductID uint16
}

// ValidateCode parses an onboarding code in either format. Strings
// starting with "MT:" are treated as QR payloads, everything else as a
// manual pairing code. Malformed codes fail here and are never sent to
// the backend.
func ValidateCode(code string) (Payload, error) {
	if strings.HasPrefix(code, qrPrefix) {
		return ParseQRCode(code)
	}
	return ParseManualCode(code)
}

// ParseManualCode decodes an 11-digit manual pairing code.
//
// The code packs its fields into three numeric chunks: one digit
// carrying the VID/PID flag and discriminator bits 10-11, five digits
// carrying discriminator bits 8-9 and the low 14 passcode bits, and
// four digits carrying the high 13 passcode bits. The final digit is a
// check digit; the backend verifies it during pairing.
func ParseManualCode(code string) (Payload, error) {
	if len(code) != manualCodeLength {
		return Payload{}, fmt.Errorf("%w: manual code must be %d digits, got %d", ErrInvalidCode, manualCodeLength, len(code))
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return Payload{}, fmt.Errorf("%w: manual code must be numeric", ErrInvalidCode)
		}
	}

	lead := uint16(code[0] - '0')
	chunk2, err := strconv.ParseUint(code[1:6], 10, 32)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	chunk3, err := strconv.ParseUint(code[6:10], 10, 32)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	// Chunk two is a 16-bit field and chunk three a 13-bit field; the
	// decimal ranges allow larger values, which no encoder emits.
	if chunk2 > 0xFFFF {
		return Payload{}, fmt.Errorf("%w: manual code field out of range", ErrInvalidCode)
	}
	if chunk3 > 0x1FFF {
		return Payload{}, fmt.Errorf("%w: manual code field out of range", ErrInvalidCode)
	}

	passcode := uint32(chunk3)<<14 | uint32(chunk2)&0x3FFF
	if err := validatePasscode(passcode); err != nil {
		return Payload{}, err
	}

	discriminator := (lead&0x3)<<10 | uint16(chunk2>>14)<<8

	return Payload{
		Kind:          PayloadManual,
		Code:          code,
		SetupPIN:      passcode,
		Discriminator: discriminator,
	}, nil
}

// ParseQRCode decodes an "MT:"-prefixed onboarding payload.
func ParseQRCode(code string) (Payload, error) {
	body, ok := strings.CutPrefix(code, qrPrefix)
	if !ok {
		return Payload{}, fmt.Errorf("%w: QR payload must start with %q", ErrInvalidCode, qrPrefix)
	}
	if body == "" {
		return Payload{}, fmt.Errorf("%w: QR payload is empty", ErrInvalidCode)
	}

	packed, err := decodeBase38(body)
	if err != nil {
		return Payload{}, err
	}
	if len(packed) < qrPayloadBytes {
		return Payload{}, fmt.Errorf("%w: QR payload too short: %d bytes", ErrInvalidCode, len(packed))
	}

	if v := readBits(packed, versionOffset, versionBits); v != 0 {
		return Payload{}, fmt.Errorf("%w: unsupported payload version %d", ErrInvalidCode, v)
	}

	passcode := uint32(readBits(packed, passcodeOffset, passcodeBits))
	if err := validatePasscode(passcode); err != nil {
		return Payload{}, err
	}

	return Payload{
		Kind:          PayloadQR,
		Code:          code,
		SetupPIN:      passcode,
		Discriminator: uint16(readBits(packed, discriminatorOffset, discriminatorBits)),
		VendorID:      uint16(readBits(packed, vendorOffset, vendorBits)),
		ProductID:     uint16(readBits(packed, productOffset, productBits)),
	}, nil
}

// validatePasscode rejects setup PINs no conforming device can use.
func validatePasscode(pin uint32) error {
	if pin == 0 || pin > maxPasscode {
		return fmt.Errorf("%w: setup PIN %d out of range", ErrInvalidCode, pin)
	}
	if trivialPasscodes[pin] {
		return fmt.Errorf("%w: setup PIN is a known trivial value", ErrInvalidCode)
	}
	return nil
}

// decodeBase38 unpacks the QR payload body. Characters are grouped in
// fives, each group carrying three bytes with the least significant
// character first; a trailing group of four characters carries two
// bytes and a group of two carries one.
func decodeBase38(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)/5*3+2)

	for i := 0; i < len(s); i += 5 {
		end := i + 5
		if end > len(s) {
			end = len(s)
		}
		group := s[i:end]

		var width int
		switch len(group) {
		case 5:
			width = 3
		case 4:
			width = 2
		case 2:
			width = 1
		default:
			return nil, fmt.Errorf("%w: truncated QR payload group", ErrInvalidCode)
		}

		var value uint32
		for j := len(group) - 1; j >= 0; j-- {
			idx := strings.IndexByte(base38Alphabet, group[j])
			if idx < 0 {
				return nil, fmt.Errorf("%w: invalid QR payload character %q", ErrInvalidCode, group[j])
			}
			value = value*38 + uint32(idx)
		}

		// A group must fit its byte width exactly; anything larger is
		// not a valid encoding.
		if value>>(width*8) != 0 {
			return nil, fmt.Errorf("%w: QR payload group out of range", ErrInvalidCode)
		}
		for k := 0; k < width; k++ {
			out = append(out, byte(value))
			value >>= 8
		}
	}

	return out, nil
}

// readBits extracts count bits starting at offset from a little-endian
// bit stream, least significant bit first.
func readBits(buf []byte, offset, count int) uint64 {
	var v uint64
	for i := 0; i < count; i++ {
		bit := offset + i
		if buf[bit/8]>>(bit%8)&1 == 1 {
			v |= 1 << i
		}
	}
	return v
}
