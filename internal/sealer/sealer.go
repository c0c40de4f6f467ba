// Package sealer encrypts capsule payloads under an owner passphrase.
//
// Blob layout is base64(salt[16] || nonce[12] || ciphertext || tag[16]) with the key
// derived by PBKDF2-HMAC-SHA256 and the payload sealed with AES-256-GCM. The layout
// and iteration count match blobs produced by the browser client.
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	dErrors "kairos/pkg/domain-errors"
)

const (
	SaltSize          = 16
	NonceSize         = 12
	KeySize           = 32
	TagSize           = 16
	DefaultIterations = 100_000
)

const integrityMessage = "wrong passphrase or corrupted data"

// Sealer is stateless apart from its configuration and safe for concurrent use.
// Keys are derived on every call and never cached.
type Sealer struct {
	iterations int
	random     io.Reader
}

type Option func(*Sealer)

// WithIterations overrides the PBKDF2 work factor. Blobs sealed with a
// non-default count can only be opened by a Sealer using the same count.
func WithIterations(n int) Option {
	return func(s *Sealer) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// WithRandom replaces the entropy source (tests only).
func WithRandom(r io.Reader) Option {
	return func(s *Sealer) {
		if r != nil {
			s.random = r
		}
	}
}

func New(opts ...Option) *Sealer {
	s := &Sealer{iterations: DefaultIterations, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSealer = New()

// Seal encrypts plaintext with the default work factor.
func Seal(plaintext []byte, passphrase string) (string, error) {
	return defaultSealer.Seal(plaintext, passphrase)
}

// Open decrypts a blob produced by Seal.
func Open(blob string, passphrase string) ([]byte, error) {
	return defaultSealer.Open(blob, passphrase)
}

// Seal encrypts plaintext. Salt and nonce are fresh per call, so sealing the
// same input twice yields different blobs.
func (s *Sealer) Seal(plaintext []byte, passphrase string) (string, error) {
	header := make([]byte, SaltSize+NonceSize)
	if _, err := io.ReadFull(s.random, header); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read salt and nonce")
	}
	salt, nonce := header[:SaltSize], header[SaltSize:]

	aead, err := s.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	out := aead.Seal(header, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts blob. Every failure, including malformed input, reports the
// same integrity error and releases no plaintext.
func (s *Sealer) Open(blob string, passphrase string) ([]byte, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(blob)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, integrityMessage)
	}
	if len(raw) < SaltSize+NonceSize+TagSize {
		return nil, dErrors.New(dErrors.CodeIntegrity, integrityMessage)
	}
	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	ciphertext := raw[SaltSize+NonceSize:]

	aead, err := s.aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, integrityMessage)
	}
	return plaintext, nil
}

func (s *Sealer) aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, s.iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("new cipher: %w", err), dErrors.CodeInternal, "initialise cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("new gcm: %w", err), dErrors.CodeInternal, "initialise cipher")
	}
	return aead, nil
}
