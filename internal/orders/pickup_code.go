package orders

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"
)

const (
	pickupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pickupCodeLength   = 6
)

// GeneratePickupCode draws a six character [A-Z0-9] code from r, or from
// crypto/rand when r is nil.
func GeneratePickupCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	max := big.NewInt(int64(len(pickupCodeAlphabet)))
	var b strings.Builder
	b.Grow(pickupCodeLength)
	for i := 0; i < pickupCodeLength; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(pickupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// PickupCodeMatches compares a presented code with the stored one, ignoring
// case and surrounding whitespace.
func PickupCodeMatches(stored *string, presented string) bool {
	if stored == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*stored), strings.TrimSpace(presented))
}
