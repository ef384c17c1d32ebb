// Package cryptox seals small records (the session file) under a passphrase.
//
// The key is derived with argon2id from the passphrase and a random per-seal
// salt; the record is encrypted with AES-256-GCM. The sealed form is a JSON
// envelope so it can be told apart from a plain JSON record on disk.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Algorithm tags every envelope produced by Seal.
const Algorithm = "argon2id+aes256gcm"

const saltSize = 16

var ErrUnsupportedEnvelope = errors.New("unsupported envelope")

// Envelope is the on-disk sealed form.
type Envelope struct {
	Algorithm  string `json:"alg"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"data"`
}

// DeriveKey stretches a passphrase into a 32-byte AES key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext under passphrase and returns the JSON envelope.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := newAEAD(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Algorithm:  Algorithm,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(Algorithm)),
	})
}

// Open reverses Seal. A wrong passphrase or tampered envelope fails
// authentication and returns an error.
func Open(sealed, passphrase []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, err
	}
	if env.Algorithm != Algorithm {
		return nil, ErrUnsupportedEnvelope
	}

	aead, err := newAEAD(DeriveKey(passphrase, env.Salt))
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrUnsupportedEnvelope
	}

	return aead.Open(nil, env.Nonce, env.Ciphertext, []byte(Algorithm))
}

// IsSealed reports whether data looks like an envelope produced by Seal.
func IsSealed(data []byte) bool {
	var probe struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Algorithm == Algorithm
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
