package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Plate is a normalized vehicle identifier: uppercase with no whitespace.
// It is the natural key of the ledger.
type Plate string

// plateFormat accepts the legacy "AAA0000" and the Mercosul "AAA0A00" layouts.
var plateFormat = regexp.MustCompile(`^[A-Z]{3}[0-9][0-9A-Z][0-9]{2}$`)

// NormalizePlate uppercases raw and strips every whitespace rune.
// Returns ErrInvalidPlate when nothing is left.
func NormalizePlate(raw string) (Plate, error) {
	p := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
	if p == "" {
		return "", fmt.Errorf("%w: plate is required", ErrInvalidPlate)
	}
	return Plate(p), nil
}

// ParsePlate normalizes raw and checks it against the accepted plate formats.
func ParsePlate(raw string) (Plate, error) {
	p, err := NormalizePlate(raw)
	if err != nil {
		return "", err
	}
	if !plateFormat.MatchString(string(p)) {
		return "", fmt.Errorf("%w: %q must look like AAA0000 or AAA0A00", ErrInvalidPlate, string(p))
	}
	return p, nil
}

func (p Plate) String() string { return string(p) }
