package validation

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func TestValidateTaxIDKnownValues(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"11144477735", true},
		{"52998224725", true},
		{"11144477705", false},
		{"11144477795", false},
		{"52998224705", false},
		{"111.444.777-35", true},
		{"11111111111", false},
		{"12345678900", false},
		{"1114447773", false},
		{"", false},
		{"abc", false},
	}

	for _, tc := range tests {
		if got := ValidateTaxID(tc.input); got != tc.want {
			t.Fatalf("ValidateTaxID(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

// checkDigit is the mod-11 CPF check digit over digits with weights
// starting at firstWeight.
func checkDigit(digits string, firstWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (firstWeight - i)
	}
	if remainder := sum % 11; remainder >= 2 {
		return 11 - remainder
	}
	return 0
}

func TestValidateTaxIDFollowsCheckDigits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		prefix := fmt.Sprintf("%09d", rng.Intn(1_000_000_000))
		first := checkDigit(prefix, 10)
		second := checkDigit(fmt.Sprintf("%s%d", prefix, first), 11)
		for suffix := 0; suffix < 100; suffix++ {
			cpf := fmt.Sprintf("%s%02d", prefix, suffix)
			want := suffix == first*10+second && !allSameDigit(cpf)
			if got := ValidateTaxID(cpf); got != want {
				t.Fatalf("ValidateTaxID(%q) = %v, want %v", cpf, got, want)
			}
		}
	}
}

func TestValidateTaxIDExactlyOneSuffixPerPrefix(t *testing.T) {
	for _, prefix := range []string{"111444777", "529982247", "390533447"} {
		valid := 0
		for suffix := 0; suffix < 100; suffix++ {
			if ValidateTaxID(fmt.Sprintf("%s%02d", prefix, suffix)) {
				valid++
			}
		}
		if valid != 1 {
			t.Fatalf("expected exactly one valid suffix for %s, got %d", prefix, valid)
		}
	}
}

func TestValidateTaxIDRejectsRepeatedDigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		cpf := strings.Repeat(string(d), 11)
		if ValidateTaxID(cpf) {
			t.Fatalf("expected %s to be rejected", cpf)
		}
	}
}

func TestValidateMobilePhone(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"11987654321", true},
		{"(11) 98765-4321", true},
		{"1187654321", false},
		{"11887654321", false},
		{"119876543210", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := ValidateMobilePhone(tc.input); got != tc.want {
			t.Fatalf("ValidateMobilePhone(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestValidatePostalCode(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"01310-100", true},
		{"01310100", true},
		{"1310-100", false},
		{"01310--100", false},
		{"01310-1000", false},
		{"0131a-100", false},
	}

	for _, tc := range tests {
		if got := ValidatePostalCode(tc.input); got != tc.want {
			t.Fatalf("ValidatePostalCode(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"a@b.com", true},
		{"maria.silva@clinica.com.br", true},
		{"a@b", false},
		{"a b@c.com", false},
		{"a@@b.com", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := ValidateEmail(tc.input); got != tc.want {
			t.Fatalf("ValidateEmail(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatCPF("11144477735"); got != "111.444.777-35" {
		t.Fatalf("FormatCPF = %q", got)
	}
	if got := FormatPostalCode("01310100"); got != "01310-100" {
		t.Fatalf("FormatPostalCode = %q", got)
	}
	if got := FormatMobilePhone("11987654321"); got != "(11) 98765-4321" {
		t.Fatalf("FormatMobilePhone = %q", got)
	}
	if got := FormatPostalCode("123"); got != "123" {
		t.Fatalf("expected short input returned unchanged, got %q", got)
	}
}

func TestFieldErrorsKeepsFirstMessage(t *testing.T) {
	errs := FieldErrors{}
	errs.Add("cpf", "CPF inválido")
	errs.Add("cpf", "outro")
	errs.Add("cep", "CEP inválido")

	if errs.Empty() {
		t.Fatalf("expected errors")
	}
	if errs["cpf"] != "CPF inválido" {
		t.Fatalf("expected first message kept, got %q", errs["cpf"])
	}
	if got := errs.Error(); got != "cep: CEP inválido; cpf: CPF inválido" {
		t.Fatalf("unexpected error string %q", got)
	}
}
