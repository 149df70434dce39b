package commissioning

import (
	"errors"
	"testing"
)

func TestParseManualCode(t *testing.T) {
	tests := []struct {
		name              string
		code              string
		wantPIN           uint32
		wantDiscriminator uint16
	}{
		{
			name:              "reference onboarding code",
			code:              "34970112332",
			wantPIN:           20202021,
			wantDiscriminator: 3840,
		},
		{
			name:              "arbitrary valid code",
			code:              "11223344556",
			wantPIN:           73002953,
			wantDiscriminator: 1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseManualCode(tt.code)
			if err != nil {
				t.Fatalf("ParseManualCode(%q) error = %v", tt.code, err)
			}
			if payload.Kind != PayloadManual {
				t.Errorf("Kind = %q, want %q", payload.Kind, PayloadManual)
			}
			if payload.Code != tt.code {
				t.Errorf("Code = %q, want %q", payload.Code, tt.code)
			}
			if payload.SetupPIN != tt.wantPIN {
				t.Errorf("SetupPIN = %d, want %d", payload.SetupPIN, tt.wantPIN)
			}
			if payload.Discriminator != tt.wantDiscriminator {
				t.Errorf("Discriminator = %d, want %d", payload.Discriminator, tt.wantDiscriminator)
			}
		})
	}
}

func TestParseManualCodeRejects(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"too short", "1122334455"},
		{"too long", "112233445566"},
		{"non-numeric", "1122334455a"},
		{"chunk out of range", "00000099990"},
		{"zero passcode", "00000000000"},
		{"trivial passcode", "00275906780"}, // decodes to 11111111
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManualCode(tt.code)
			if !errors.Is(err, ErrInvalidCode) {
				t.Errorf("ParseManualCode(%q) error = %v, want ErrInvalidCode", tt.code, err)
			}
		})
	}
}

func TestParseQRCode(t *testing.T) {
	// Reference onboarding payload for the test vendor.
	payload, err := ParseQRCode("MT:Y.K9042C00KA0648G00")
	if err != nil {
		t.Fatalf("ParseQRCode() error = %v", err)
	}

	if payload.Kind != PayloadQR {
		t.Errorf("Kind = %q, want %q", payload.Kind, PayloadQR)
	}
	if payload.SetupPIN != 20202021 {
		t.Errorf("SetupPIN = %d, want 20202021", payload.SetupPIN)
	}
	if payload.Discriminator != 3840 {
		t.Errorf("Discriminator = %d, want 3840", payload.Discriminator)
	}
	if payload.VendorID != 65521 {
		t.Errorf("VendorID = %d, want 65521", payload.VendorID)
	}
	if payload.ProductID != 32768 {
		t.Errorf("ProductID = %d, want 32768", payload.ProductID)
	}
}

func TestParseQRCodeRejects(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty body", "MT:"},
		{"invalid character", "MT:AB#12"},
		{"truncated group", "MT:ABC"},
		{"payload too short", "MT:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQRCode(tt.code)
			if !errors.Is(err, ErrInvalidCode) {
				t.Errorf("ParseQRCode(%q) error = %v, want ErrInvalidCode", tt.code, err)
			}
		})
	}
}

func TestValidateCodeDispatch(t *testing.T) {
	qr, err := ValidateCode("MT:Y.K9042C00KA0648G00")
	if err != nil {
		t.Fatalf("ValidateCode(QR) error = %v", err)
	}
	if qr.Kind != PayloadQR {
		t.Errorf("QR payload Kind = %q, want %q", qr.Kind, PayloadQR)
	}

	manual, err := ValidateCode("34970112332")
	if err != nil {
		t.Fatalf("ValidateCode(manual) error = %v", err)
	}
	if manual.Kind != PayloadManual {
		t.Errorf("manual payload Kind = %q, want %q", manual.Kind, PayloadManual)
	}
}
