package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCNPJ is returned for identifiers that are not well-formed CNPJs.
var ErrInvalidCNPJ = errors.New("invalid CNPJ")

// Normalize strips everything but digits.
func Normalize(cnpj string) string {
	var sb strings.Builder
	for _, r := range cnpj {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Validate checks length and both check digits of a normalized CNPJ.
func Validate(cnpj string) error {
	if len(cnpj) != 14 {
		return fmt.Errorf("%w: expected 14 digits, got %d", ErrInvalidCNPJ, len(cnpj))
	}
	for i := 0; i < 14; i++ {
		if cnpj[i] < '0' || cnpj[i] > '9' {
			return fmt.Errorf("%w: non-digit at position %d", ErrInvalidCNPJ, i)
		}
	}
	if strings.Count(cnpj, cnpj[:1]) == 14 {
		return fmt.Errorf("%w: repeated digits", ErrInvalidCNPJ)
	}
	if checkDigit(cnpj[:12]) != cnpj[12] || checkDigit(cnpj[:13]) != cnpj[13] {
		return fmt.Errorf("%w: check digits do not match", ErrInvalidCNPJ)
	}
	return nil
}

// checkDigit computes the modulo-11 digit for a 12 or 13 digit prefix.
func checkDigit(prefix string) byte {
	sum := 0
	weight := len(prefix) - 7
	for i := 0; i < len(prefix); i++ {
		sum += int(prefix[i]-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

// Format renders a normalized CNPJ as XX.XXX.XXX/XXXX-XX.
func Format(cnpj string) string {
	if len(cnpj) != 14 {
		return cnpj
	}
	return cnpj[:2] + "." + cnpj[2:5] + "." + cnpj[5:8] + "/" + cnpj[8:12] + "-" + cnpj[12:]
}
