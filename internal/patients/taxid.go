package patients

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidTaxID is returned when a tax id fails the checksum.
var ErrInvalidTaxID = errors.New("patients: invalid tax id")

// NormalizeTaxID strips everything but digits.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidTaxID checks an 11-digit CPF including both check digits.
func ValidTaxID(raw string) bool {
	digits := NormalizeTaxID(raw)
	if len(digits) != 11 {
		return false
	}
	allSame := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}
	return checkDigit(digits[:9], 10) == int(digits[9]-'0') &&
		checkDigit(digits[:10], 11) == int(digits[10]-'0')
}

func checkDigit(prefix string, weight int) int {
	sum := 0
	for i := 0; i < len(prefix); i++ {
		sum += int(prefix[i]-'0') * (weight - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}

// FormatTaxID renders 11 digits as 000.000.000-00; other input is returned normalized.
func FormatTaxID(raw string) string {
	d := NormalizeTaxID(raw)
	if len(d) != 11 {
		return d
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

// TaxIDRule is an ozzo-validation rule for optional tax id values.
var TaxIDRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !ValidTaxID(s) {
		return ErrInvalidTaxID
	}
	return nil
})
