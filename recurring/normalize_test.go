package recurring

import "testing"

func TestMerchantKey(t *testing.T) {
	tests := []struct {
		name        string
		description string
		hint        string
		want        string
	}{
		{"long digit suffix", "SPOTIFY USA 12345678", "", "Spotify Usa"},
		{"store number suffix", "Comcast  Cable   #4521", "", "Comcast Cable"},
		{"padded store number", "  planet fitness # 12 ", "", "Planet Fitness"},
		{"stacked suffixes", "AMZN Mktp 0001 2222", "", "Amzn Mktp"},
		{"short digits kept", "STORE123", "", "Store123"},
		{"digits only", "12345", "", ""},
		{"blank", "   ", "", ""},
		{"hint preferred", "POS DEBIT 99881234", "Verizon Wireless", "Verizon Wireless"},
		{"hint normalized", "whatever", "  netflix  ", "Netflix"},
		{"blank hint ignored", "HULU #77", "   ", "Hulu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MerchantKey(tt.description, tt.hint); got != tt.want {
				t.Errorf("MerchantKey(%q, %q) = %q, want %q", tt.description, tt.hint, got, tt.want)
			}
		})
	}
}

func TestNormalizeMerchantIsIdempotent(t *testing.T) {
	inputs := []string{
		"SPOTIFY USA 12345678",
		"Comcast  Cable   #4521",
		"AMZN Mktp 0001 2222",
		"geico  auto insurance",
		"City of Springfield Water 0042 #9",
		"ÉLECTRICITÉ DE FRANCE 20240101",
		"Rent - 12 Main St",
		"a",
		"12345",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := NormalizeMerchant(in)
			if twice := NormalizeMerchant(once); twice != once {
				t.Errorf("NormalizeMerchant not idempotent: %q -> %q -> %q", in, once, twice)
			}
		})
	}
}
