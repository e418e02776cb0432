package authentication

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 of body keyed with the agent's PSK and
// returns the lowercase hex digest. The signature covers the exact body
// bytes put on the wire; sender and receiver must agree byte-for-byte on
// serialization or verification fails.
func Sign(psk string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(psk))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a claimed hex signature against the expected
// HMAC-SHA256 of body. The comparison is constant time and the hex digest is
// accepted case-insensitively. Any decode failure or length mismatch rejects.
func VerifySignature(psk string, body []byte, signature string) bool {
	claimed, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(psk))
	mac.Write(body)
	return hmac.Equal(claimed, mac.Sum(nil))
}
