package authentication

import (
	"strings"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"status":"online"}`)
	sig := Sign("secret", body)

	if !VerifySignature("secret", body, sig) {
		t.Fatalf("expected signature to verify")
	}
	// hex digests are accepted case-insensitively
	if !VerifySignature("secret", body, strings.ToUpper(sig)) {
		t.Fatalf("expected uppercase signature to verify")
	}
}

func TestVerifyRejectsBodyBitFlip(t *testing.T) {
	body := []byte(`{"status":"online"}`)
	sig := Sign("secret", body)

	flipped := make([]byte, len(body))
	copy(flipped, body)
	flipped[0] ^= 0x01

	if VerifySignature("secret", flipped, sig) {
		t.Fatalf("expected verification to reject flipped body")
	}
}

func TestVerifyRejectsSignatureBitFlip(t *testing.T) {
	body := []byte(`{"status":"online"}`)
	sig := Sign("secret", body)

	var b strings.Builder
	for i, c := range sig {
		if i == 0 {
			if c == '0' {
				c = '1'
			} else {
				c = '0'
			}
		}
		b.WriteRune(c)
	}

	if VerifySignature("secret", body, b.String()) {
		t.Fatalf("expected verification to reject altered signature")
	}
}

func TestVerifyRejectsWrongKeyAndGarbage(t *testing.T) {
	body := []byte(`{}`)
	sig := Sign("secret", body)

	if VerifySignature("other", body, sig) {
		t.Fatalf("expected verification to reject wrong PSK")
	}
	if VerifySignature("secret", body, "not-hex") {
		t.Fatalf("expected verification to reject non-hex signature")
	}
	if VerifySignature("secret", body, sig[:10]) {
		t.Fatalf("expected verification to reject truncated signature")
	}
}

func TestGeneratePSK(t *testing.T) {
	a, err := GeneratePSK(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(a))
	}
	b, _ := GeneratePSK(32)
	if a == b {
		t.Fatalf("expected distinct keys")
	}
}
