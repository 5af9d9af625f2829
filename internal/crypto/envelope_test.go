package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := ParseKey(strings.Repeat("ab", KeySize))
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("package main\n\nfunc main() {}\n")

	env, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if len(env.IV) != NonceSize*2 {
		t.Errorf("iv hex length = %d, want %d", len(env.IV), NonceSize*2)
	}
	if len(env.Tag) != TagSize*2 {
		t.Errorf("tag hex length = %d, want %d", len(env.Tag), TagSize*2)
	}

	got, err := Decrypt(env, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same input")

	first, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if first.IV == second.IV {
		t.Error("two encryptions produced the same IV")
	}
	if first.Encrypted == second.Encrypted {
		t.Error("two encryptions produced the same ciphertext")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("grade me fairly"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	raw[0] ^= 0x01
	env.Encrypted = hex.EncodeToString(raw)

	plaintext, err := Decrypt(env, key)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("decrypt tampered ciphertext: err = %v, want ErrIntegrity", err)
	}
	if plaintext != nil {
		t.Error("tampered decrypt returned plaintext")
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw, err := hex.DecodeString(env.Tag)
	if err != nil {
		t.Fatalf("decode tag: %v", err)
	}
	raw[TagSize-1] ^= 0x80
	env.Tag = hex.EncodeToString(raw)

	if _, err := Decrypt(env, key); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("decrypt tampered tag: err = %v, want ErrIntegrity", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	other, err := ParseKey(strings.Repeat("cd", KeySize))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if _, err := Decrypt(env, other); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("decrypt with wrong key: err = %v, want ErrIntegrity", err)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	key := testKey(t)

	cases := []struct {
		name string
		env  Envelope
	}{
		{"bad iv hex", Envelope{IV: "zz", Encrypted: "00", Tag: strings.Repeat("00", TagSize)}},
		{"short iv", Envelope{IV: "0000", Encrypted: "00", Tag: strings.Repeat("00", TagSize)}},
		{"bad ciphertext hex", Envelope{IV: strings.Repeat("00", NonceSize), Encrypted: "not-hex", Tag: strings.Repeat("00", TagSize)}},
		{"short tag", Envelope{IV: strings.Repeat("00", NonceSize), Encrypted: "00", Tag: "0000"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decrypt(tc.env, key); !errors.Is(err, ErrInvalidEnvelope) {
				t.Fatalf("err = %v, want ErrInvalidEnvelope", err)
			}
		})
	}
}

func TestEnvelopeMarshalRoundTrip(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("serialize me"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	blob, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := UnmarshalEnvelope(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed != env {
		t.Errorf("envelope round trip mismatch: got %+v, want %+v", parsed, env)
	}
}

func TestUnmarshalEnvelopeRejectsIncomplete(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"iv":"00","encrypted":"00"}`,
		`{"iv":"00","tag":"00"}`,
		`{"encrypted":"00","tag":"00"}`,
	}
	for _, raw := range cases {
		if _, err := UnmarshalEnvelope([]byte(raw)); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("UnmarshalEnvelope(%q): err = %v, want ErrInvalidEnvelope", raw, err)
		}
	}
}

func TestHashContent(t *testing.T) {
	// Known SHA-256 of "abc".
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashContent([]byte("abc")); got != want {
		t.Errorf("HashContent(abc) = %s, want %s", got, want)
	}

	if HashContent([]byte("a")) == HashContent([]byte("b")) {
		t.Error("different inputs produced the same digest")
	}
}

func TestParseKey(t *testing.T) {
	if _, err := ParseKey(strings.Repeat("00", KeySize)); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if _, err := ParseKey("deadbeef"); err == nil {
		t.Error("short key accepted")
	}
	if _, err := ParseKey(strings.Repeat("zz", KeySize)); err == nil {
		t.Error("non-hex key accepted")
	}
}
