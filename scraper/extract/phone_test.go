package extract

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"tel:98123456", "98123456", true},
		{"tel:+216 98 123 456", "98123456", true},
		{"TEL:0021671234567", "71234567", true},
		{"tel:98123456/22333444", "98123456", true},
		{"tel:+21698123456/+21622333444", "98123456", true},
		{"tel:12345", "", false},
		{"tel:98123456/123", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizePhone(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPhoneFromText(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Contactez le +216 55 123 456 pour visiter", "55123456", true},
		{"Tel 00216-98-765-432", "98765432", true},
		{"Tel: 98123456 / 22333444", "98123456", true},
		{"Appelez 98 765 432 après 18h", "98765432", true},
		{"Prix 250000 DT, surface 120 m2", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := PhoneFromText(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("PhoneFromText(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}
