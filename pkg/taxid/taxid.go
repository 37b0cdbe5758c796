// Package taxid implements the Brazilian taxpayer identifier check digits:
// CPF (11 digits, individuals) and CNPJ (14 digits, companies).
//
// All functions are pure. Inputs may carry punctuation ("111.444.777-35");
// every non-digit rune is discarded before validation.
package taxid

import (
	"fmt"
	"strings"
)

const (
	CPFLength  = 11
	CNPJLength = 14
)

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// Reason tells why an identifier was rejected.
type Reason string

const (
	// ReasonShape covers wrong length and sequences of one repeated digit.
	ReasonShape Reason = "shape"
	// ReasonChecksum means the check digits do not match the body.
	ReasonChecksum Reason = "checksum"
)

// Error is returned for every rejected identifier.
type Error struct {
	Type   string // "CPF" or "CNPJ"
	Reason Reason
	Digits string
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonChecksum:
		return fmt.Sprintf("invalid %s: check digits do not match", e.Type)
	default:
		return fmt.Sprintf("invalid %s: wrong length or repeated digits", e.Type)
	}
}

// Digits returns only the ASCII digits of raw.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF normalizes raw to 11 digits and verifies both check digits.
func ValidateCPF(raw string) (string, error) {
	d := Digits(raw)
	if len(d) != CPFLength || allSame(d) {
		return "", &Error{Type: "CPF", Reason: ReasonShape, Digits: d}
	}
	if checkDigit(d[:9], descending(10, 9)) != int(d[9]-'0') ||
		checkDigit(d[:10], descending(11, 10)) != int(d[10]-'0') {
		return "", &Error{Type: "CPF", Reason: ReasonChecksum, Digits: d}
	}
	return d, nil
}

// ValidateCNPJ normalizes raw to 14 digits and verifies both check digits.
func ValidateCNPJ(raw string) (string, error) {
	d := Digits(raw)
	if len(d) != CNPJLength || allSame(d) {
		return "", &Error{Type: "CNPJ", Reason: ReasonShape, Digits: d}
	}
	if checkDigit(d[:12], cnpjFirstWeights) != int(d[12]-'0') ||
		checkDigit(d[:13], cnpjSecondWeights) != int(d[13]-'0') {
		return "", &Error{Type: "CNPJ", Reason: ReasonChecksum, Digits: d}
	}
	return d, nil
}

// CPFCheckDigits computes the two check digits for a 9-digit CPF body.
func CPFCheckDigits(body string) (int, int) {
	first := checkDigit(body, descending(10, 9))
	second := checkDigit(body+string(rune('0'+first)), descending(11, 10))
	return first, second
}

// CNPJCheckDigits computes the two check digits for a 12-digit CNPJ body.
func CNPJCheckDigits(body string) (int, int) {
	first := checkDigit(body, cnpjFirstWeights)
	second := checkDigit(body+string(rune('0'+first)), cnpjSecondWeights)
	return first, second
}

// Format renders an 11 or 14 digit identifier with the usual punctuation.
// Any other input is returned unchanged.
func Format(digits string) string {
	switch len(digits) {
	case CPFLength:
		return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
	case CNPJLength:
		return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14]
	default:
		return digits
	}
}

// checkDigit is the weighted sum modulo 11, remainder < 2 maps to 0.
func checkDigit(body string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(body[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func descending(from, n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = from - i
	}
	return w
}

func allSame(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}
