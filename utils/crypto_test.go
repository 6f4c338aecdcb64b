package utils

import (
	"encoding/base64"
	"testing"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher("test-secret")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	plaintext := "refresh-token-abc123"
	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestTokenCipherStableAcrossInstances(t *testing.T) {
	first, _ := NewTokenCipher("shared-secret")
	second, _ := NewTokenCipher("shared-secret")

	encrypted, err := first.Encrypt("value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := second.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt with rederived key: %v", err)
	}
	if decrypted != "value" {
		t.Fatalf("got %q, want %q", decrypted, "value")
	}
}

func TestTokenCipherRejectsTamperedCiphertext(t *testing.T) {
	cipher, _ := NewTokenCipher("test-secret")

	encrypted, err := cipher.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(encrypted)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := cipher.Decrypt(tampered); err != ErrDecryption {
		t.Fatalf("got %v, want ErrDecryption", err)
	}
}

func TestTokenCipherRejectsForeignCiphertext(t *testing.T) {
	ours, _ := NewTokenCipher("secret-a")
	theirs, _ := NewTokenCipher("secret-b")

	encrypted, err := theirs.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ours.Decrypt(encrypted); err != ErrDecryption {
		t.Fatalf("got %v, want ErrDecryption", err)
	}
}

func TestTokenCipherRejectsGarbage(t *testing.T) {
	cipher, _ := NewTokenCipher("test-secret")

	for _, input := range []string{"", "not-base64!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := cipher.Decrypt(input); err != ErrDecryption {
			t.Fatalf("Decrypt(%q): got %v, want ErrDecryption", input, err)
		}
	}
}

func TestNewTokenCipherEmptySecret(t *testing.T) {
	if _, err := NewTokenCipher(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("hash is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("distinct tokens produced the same hash")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("unexpected digest length %d", len(HashToken("abc")))
	}
}

func TestOTPHashBinding(t *testing.T) {
	hash := HashOTP("secret", "User@Example.com", "123456")

	if !VerifyOTPHash("secret", "user@example.com", "123456", hash) {
		t.Fatal("case-insensitive email should verify")
	}
	if VerifyOTPHash("secret", "user@example.com", "654321", hash) {
		t.Fatal("wrong code verified")
	}
	if VerifyOTPHash("secret", "other@example.com", "123456", hash) {
		t.Fatal("code replayed against another email verified")
	}
	if VerifyOTPHash("other-secret", "user@example.com", "123456", hash) {
		t.Fatal("wrong secret verified")
	}
}
