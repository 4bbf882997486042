package normalize

import (
	"errors"
	"testing"
)

func TestPhone_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare national", "600111222", "600111222"},
		{"plus 34 prefix", "+34600111222", "600111222"},
		{"0034 prefix", "0034600111222", "600111222"},
		{"leading zero", "0600111222", "600111222"},
		{"spaces and dashes", "600 111-222", "600111222"},
		{"34 without plus", "34600111222", "600111222"},
		{"surrounding whitespace", "  600111222  ", "600111222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Phone(tt.raw)
			if err != nil {
				t.Fatalf("Phone(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPhone_Empty(t *testing.T) {
	got, err := Phone("")
	if err != nil {
		t.Fatalf("empty phone must not be an error, got %v", err)
	}
	if got != "" {
		t.Errorf("Phone(\"\") = %q, want empty", got)
	}
}

func TestPhone_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"letters only", "abc"},
		{"too short", "12345"},
		{"too long", "6001112223344"},
		{"symbols only", "+++"},
		{"34 prefix wrong length", "3460011122"},
		{"ten digits no zero", "1600111222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Phone(tt.raw)
			if err == nil {
				t.Fatalf("Phone(%q) expected error, got nil", tt.raw)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Phone(%q) error is %T, want *ValidationError", tt.raw, err)
			}
		})
	}
}

func TestIMEI(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"123456789012345", "123456789012345"},
		{"12-34 56789012345", "123456789012345"},
		{"imei: 123", "123"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := IMEI(tt.raw); got != tt.want {
			t.Errorf("IMEI(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestValidIMEI(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"123456789012345", true},
		{"12345", false},
		{"1234567890123456", false},
		{"12345678901234a", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidIMEI(tt.s); got != tt.want {
			t.Errorf("ValidIMEI(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestIsCorporateEmail(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"juan.perez@mitie.es", true},
		{"J.Perez+pda@MITIE.ES", true},
		{" ana_lopez%x@mitie.es ", true},
		{"juan@gmail.com", false},
		{"juan@mitie.es.evil.com", false},
		{"@mitie.es", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsCorporateEmail(tt.addr); got != tt.want {
			t.Errorf("IsCorporateEmail(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
