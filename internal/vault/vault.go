// Package vault seals small secrets into opaque envelopes using NaCl
// secretbox. The key comes either directly (32 raw bytes, usually base64 in
// the environment) or derived from a passphrase with Argon2id, in which case
// the envelope carries the salt.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	saltLen      = 16
	keyLen       = 32
	nonceLen     = 24
)

// ErrSealed is returned when an envelope cannot be opened with the configured
// key or passphrase.
var ErrSealed = errors.New("vault: cannot open envelope")

// Envelope is the persisted form of a sealed secret. Salt is present only for
// passphrase-derived keys.
type Envelope struct {
	Version int    `json:"version"`
	Salt    string `json:"salt,omitempty"`
	Sealed  string `json:"sealed"`
}

// Vault seals and opens envelopes with a fixed key or a passphrase.
type Vault struct {
	key        *[keyLen]byte
	passphrase []byte
}

// NewKey builds a Vault from a raw 32-byte key.
func NewKey(key []byte) (*Vault, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keyLen, len(key))
	}
	var k [keyLen]byte
	copy(k[:], key)
	return &Vault{key: &k}, nil
}

// NewKeyBase64 builds a Vault from a base64-encoded 32-byte key.
func NewKeyBase64(encoded string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	return NewKey(key)
}

// NewPassphrase builds a Vault that derives its key per envelope with
// Argon2id. Each Seal mints a fresh salt.
func NewPassphrase(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault: empty passphrase")
	}
	return &Vault{passphrase: []byte(passphrase)}, nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	return key, nil
}

func deriveKey(passphrase, salt []byte) *[keyLen]byte {
	var k [keyLen]byte
	copy(k[:], argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keyLen))
	return &k
}

// Seal encrypts plaintext into an Envelope.
func (v *Vault) Seal(plaintext []byte) (Envelope, error) {
	env := Envelope{Version: 1}

	key := v.key
	if key == nil {
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return Envelope{}, fmt.Errorf("vault: generate salt: %w", err)
		}
		key = deriveKey(v.passphrase, salt)
		env.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Envelope{}, fmt.Errorf("vault: generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], plaintext, &nonce, key)
	env.Sealed = base64.StdEncoding.EncodeToString(box)
	return env, nil
}

// Open decrypts an Envelope sealed by this Vault's key or passphrase.
func (v *Vault) Open(env Envelope) ([]byte, error) {
	key := v.key
	if key == nil {
		if env.Salt == "" {
			return nil, fmt.Errorf("vault: envelope has no salt for passphrase key")
		}
		salt, err := base64.StdEncoding.DecodeString(env.Salt)
		if err != nil {
			return nil, fmt.Errorf("vault: decode salt: %w", err)
		}
		key = deriveKey(v.passphrase, salt)
	}

	box, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: decode envelope: %w", err)
	}
	if len(box) < nonceLen {
		return nil, ErrSealed
	}

	var nonce [nonceLen]byte
	copy(nonce[:], box[:nonceLen])
	plaintext, ok := secretbox.Open(nil, box[nonceLen:], &nonce, key)
	if !ok {
		return nil, ErrSealed
	}
	return plaintext, nil
}
