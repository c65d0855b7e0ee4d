// Package identifier validates and decomposes national identity numbers.
//
// An identifier is 11 digits: a 3-digit region code, a 7-digit sequence and a
// trailing check digit. Callers may submit the digits contiguously or in the
// hyphenated form RRR-SSSSSSS-C. Everything here is pure and safe for
// concurrent use.
package identifier

import (
	"strings"

	dErrors "idlookup/pkg/domain-errors"
)

const (
	// Length is the number of digits in a normalized identifier.
	Length = 11

	regionLen   = 3
	sequenceLen = 7

	reservedRegion = "000"
)

// Identifier is an immutable, successfully decomposed identity number.
type Identifier struct {
	raw             string
	normalized      string
	checkDigitValid bool
}

// ValidationInfo is a snapshot of an identifier's format and checksum facts,
// attached to every lookup result.
type ValidationInfo struct {
	CheckDigitValid bool   `json:"check_digit_valid"`
	FormatValid     bool   `json:"format_valid"`
	Region          string `json:"region"`
	Sequence        string `json:"sequence"`
	CheckDigit      string `json:"check_digit"`
	Formatted       string `json:"formatted"`
}

// Normalize strips every non-digit character.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Decompose validates raw and slices it into its fixed-width fields.
// It fails with CodeInvalidFormat when the input is not 11 contiguous digits
// or RRR-SSSSSSS-C, when every digit is the same, or when the region is 000.
// A wrong check digit does not fail; see Identifier.CheckDigitValid.
func Decompose(raw string) (Identifier, error) {
	trimmed := strings.TrimSpace(raw)
	if !acceptedShape(trimmed) {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidFormat, "identifier must be 11 digits or RRR-SSSSSSS-C")
	}

	normalized := Normalize(trimmed)
	if len(normalized) != Length {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidFormat, "identifier must contain exactly 11 digits")
	}
	if allSame(normalized) {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidFormat, "identifier cannot repeat a single digit")
	}
	if normalized[:regionLen] == reservedRegion {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidFormat, "identifier region 000 is reserved")
	}

	return Identifier{
		raw:             raw,
		normalized:      normalized,
		checkDigitValid: VerifyCheckDigit(normalized),
	}, nil
}

// MustDecompose is Decompose for constants known to be valid.
func MustDecompose(raw string) Identifier {
	id, err := Decompose(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// ComputeCheckDigit applies the alternating 1,2 weighted sum to the first ten
// digits of digits. Products above 9 contribute the sum of their two digits.
// It returns -1 when fewer than ten digits are supplied.
func ComputeCheckDigit(digits string) int {
	if len(digits) < Length-1 {
		return -1
	}
	sum := 0
	for i := 0; i < Length-1; i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return -1
		}
		p := int(c-'0') * (1 + i%2)
		if p > 9 {
			p = p/10 + p%10
		}
		sum += p
	}
	return (10 - sum%10) % 10
}

// VerifyCheckDigit reports whether the 11th digit of a normalized identifier
// matches the computed check digit.
func VerifyCheckDigit(normalized string) bool {
	if len(normalized) != Length {
		return false
	}
	want := ComputeCheckDigit(normalized)
	return want >= 0 && int(normalized[Length-1]-'0') == want
}

// Raw returns the input as submitted.
func (id Identifier) Raw() string { return id.raw }

// Normalized returns the 11 digits. Do not log it; use Masked.
func (id Identifier) Normalized() string { return id.normalized }

// Region returns digits [0,3).
func (id Identifier) Region() string { return id.normalized[:regionLen] }

// Sequence returns digits [3,10).
func (id Identifier) Sequence() string { return id.normalized[regionLen : regionLen+sequenceLen] }

// CheckDigit returns the 11th digit.
func (id Identifier) CheckDigit() string { return id.normalized[Length-1:] }

// CheckDigitValid reports whether the trailing digit matches the checksum.
func (id Identifier) CheckDigitValid() bool { return id.checkDigitValid }

// IsZero reports whether id was never successfully decomposed.
func (id Identifier) IsZero() bool { return id.normalized == "" }

// Formatted returns RRR-SSSSSSS-C.
func (id Identifier) Formatted() string {
	if id.IsZero() {
		return ""
	}
	return id.Region() + "-" + id.Sequence() + "-" + id.CheckDigit()
}

// Masked returns RRR-*****-C, the only form allowed in logs.
func (id Identifier) Masked() string {
	if id.IsZero() {
		return ""
	}
	return id.Region() + "-*****-" + id.CheckDigit()
}

// String returns the masked form so identifiers are safe to pass to loggers.
func (id Identifier) String() string { return id.Masked() }

// ValidationInfo snapshots the identifier's format facts.
func (id Identifier) ValidationInfo() ValidationInfo {
	if id.IsZero() {
		return ValidationInfo{}
	}
	return ValidationInfo{
		CheckDigitValid: id.checkDigitValid,
		FormatValid:     true,
		Region:          id.Region(),
		Sequence:        id.Sequence(),
		CheckDigit:      id.CheckDigit(),
		Formatted:       id.Formatted(),
	}
}

// acceptedShape matches DDDDDDDDDDD or DDD-DDDDDDD-D.
func acceptedShape(s string) bool {
	switch len(s) {
	case Length:
		return isDigits(s)
	case Length + 2:
		return s[3] == '-' && s[11] == '-' &&
			isDigits(s[:3]) && isDigits(s[4:11]) && isDigits(s[12:])
	default:
		return false
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
