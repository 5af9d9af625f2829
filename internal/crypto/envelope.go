// Package crypto implements the file confidentiality and integrity pipeline:
// SHA-256 content fingerprinting plus AES-256-GCM envelope encryption of
// submission payloads. A single system key stands in for a KMS.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce/IV length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	// ErrIntegrity indicates the authentication tag did not verify.
	// No plaintext is returned when this is reported.
	ErrIntegrity = errors.New("integrity check failed: authentication tag mismatch")

	// ErrInvalidEnvelope indicates the envelope could not be parsed.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is the serialized form of one encrypted file: IV, ciphertext,
// and authentication tag as hex strings. The three parts are only meaningful
// as a unit; the tag must verify before decrypted output is trusted.
type Envelope struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	Tag       string `json:"tag"`
}

// Marshal serializes the envelope for blob storage.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope parses a stored envelope blob.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}
	if env.IV == "" || env.Encrypted == "" || env.Tag == "" {
		return Envelope{}, ErrInvalidEnvelope
	}
	return env, nil
}

// HashContent returns the hex SHA-256 digest of data. The digest is a
// deterministic content fingerprint used for tamper detection, not secrecy.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParseKey decodes a hex-encoded AES-256 key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("system key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("system key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under key with AES-256-GCM. A fresh random IV is
// generated per call; reusing an IV with the same key would break both
// confidentiality and authentication.
func Encrypt(plaintext, key []byte) (Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the tag to the ciphertext; the envelope stores them
	// separately for round-trip fidelity with the on-disk layout.
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return Envelope{
		IV:        hex.EncodeToString(iv),
		Encrypted: hex.EncodeToString(ciphertext),
		Tag:       hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens an envelope under key. It fails closed: if the tag does not
// verify, ErrIntegrity is returned and no plaintext is produced.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != NonceSize {
		return nil, ErrInvalidEnvelope
	}
	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != TagSize {
		return nil, ErrInvalidEnvelope
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
