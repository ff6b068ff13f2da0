package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of "orderRef|paymentRef" keyed by secret,
// the value processors send back as the payment signature.
func Sign(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValid compares signature against the expected value in constant time.
func SignatureValid(secret, orderRef, paymentRef, signature string) bool {
	expected := Sign(secret, orderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}
