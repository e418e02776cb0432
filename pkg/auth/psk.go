package authentication

import "crypto/rand"

const pskAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

// GeneratePSK returns a cryptographically random pre-shared key of the given
// length, used when an operator registers an agent without supplying one.
func GeneratePSK(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = pskAlphabet[int(b)%len(pskAlphabet)]
	}
	return string(buf), nil
}
