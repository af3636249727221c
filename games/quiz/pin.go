package quiz

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	minPinDigits = 6
	maxPinDigits = 8

	// pinAttempts is how many random PINs are tried at one width before
	// widening by a digit.
	pinAttempts = 16
)

// NewPin returns a random numeric PIN of the given width, zero padded.
func NewPin(digits int) (string, error) {
	digits = min(max(digits, minPinDigits), maxPinDigits)

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// pinWidths yields the width to use for each allocation attempt, starting
// at digits and widening once a width has been tried pinAttempts times.
func pinWidths(digits int) []int {
	digits = min(max(digits, minPinDigits), maxPinDigits)

	var widths []int
	for w := digits; w <= maxPinDigits; w++ {
		for range pinAttempts {
			widths = append(widths, w)
		}
	}
	return widths
}
