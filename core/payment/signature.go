package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under secret, the
// signature a gateway attaches to a checkout confirmation.
func Sign(secret, orderID, paymentID string) string {
	return signBytes(secret, []byte(orderID+"|"+paymentID))
}

// ValidSignature compares in constant time.
func ValidSignature(secret, orderID, paymentID, signature string) bool {
	return equal(Sign(secret, orderID, paymentID), signature)
}

// ValidWebhook checks the signature of a raw webhook body.
func ValidWebhook(secret string, body []byte, signature string) bool {
	return equal(signBytes(secret, body), signature)
}

func signBytes(secret string, b []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil))
}

func equal(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
