package validation

import (
	"regexp"
	"sort"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)
var postalCodePattern = regexp.MustCompile(`^[0-9]{5}-?[0-9]{3}$`)
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func Digits(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

// ValidateTaxID checks a CPF, masked or not: 11 digits, not all equal, with
// matching check digits.
func ValidateTaxID(raw string) bool {
	cpf := Digits(raw)
	if len(cpf) != 11 || allSameDigit(cpf) {
		return false
	}
	return cpfCheckDigit(cpf[:9], 10) == int(cpf[9]-'0') &&
		cpfCheckDigit(cpf[:10], 11) == int(cpf[10]-'0')
}

// cpfCheckDigit weights digits from firstWeight down to 2, modulo 11.
func cpfCheckDigit(digits string, firstWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (firstWeight - i)
	}
	if r := sum % 11; r >= 2 {
		return 11 - r
	}
	return 0
}

func allSameDigit(digits string) bool {
	return strings.Count(digits, digits[:1]) == len(digits)
}

func ValidatePostalCode(raw string) bool {
	return postalCodePattern.MatchString(raw)
}

func ValidateEmail(raw string) bool {
	return emailPattern.MatchString(raw)
}

// ValidateMobilePhone accepts Brazilian mobile numbers: DDD plus a
// nine-digit subscriber number starting with 9.
func ValidateMobilePhone(raw string) bool {
	phone := Digits(raw)
	return len(phone) == 11 && phone[2] == '9'
}

func FormatCPF(raw string) string {
	cpf := Digits(raw)
	if len(cpf) != 11 {
		return raw
	}
	return cpf[:3] + "." + cpf[3:6] + "." + cpf[6:9] + "-" + cpf[9:]
}

func FormatPostalCode(raw string) string {
	cep := Digits(raw)
	if len(cep) != 8 {
		return raw
	}
	return cep[:5] + "-" + cep[5:]
}

func FormatMobilePhone(raw string) string {
	phone := Digits(raw)
	if len(phone) != 11 {
		return raw
	}
	return "(" + phone[:2] + ") " + phone[2:7] + "-" + phone[7:]
}

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

func (e FieldErrors) Add(field string, message string) {
	if _, exists := e[field]; !exists {
		e[field] = message
	}
}

func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e[field])
	}
	return strings.Join(parts, "; ")
}
