package models

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// pnrCharset deliberately uses the full A-Z 0-9 alphabet; ambiguous glyphs
// (O/0, I/1) stay in because airline record locators include them.
const pnrCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const pnrLength = 6

var pnrRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidatePnr checks the six character record locator format.
func ValidatePnr(pnr string) error {
	if !pnrRegex.MatchString(pnr) {
		return NewDomainError(TagBookingPersistence, "invalid PNR code %q", pnr).
			WithField("field", "pnrCode")
	}
	return nil
}

// GeneratePnr produces a random six character record locator.
// Uniqueness among active bookings is enforced by the bookings table's
// unique constraint; callers retry on collision.
func GeneratePnr() (string, error) {
	buf := make([]byte, pnrLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate PNR: %w", err)
	}
	for i, b := range buf {
		buf[i] = pnrCharset[int(b)%len(pnrCharset)]
	}
	return string(buf), nil
}
