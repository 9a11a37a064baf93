// Package integrity implements the tamper-evident vote ledger: fingerprint
// hashing, HMAC signing, symmetric encryption of ballot metadata, hash
// chaining, voter verification tokens and the admin integrity report.
package integrity

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrUnknownKeyVersion reports a key version no configured secret covers,
// either a tampered key_version column or a retired secret the deployment no
// longer supplies.
var ErrUnknownKeyVersion = errors.New("unknown key version")

// Keyring holds the versioned process secrets. Secrets are injected from
// deployment configuration; records remember the key version they were written
// under, so retired secrets stay usable for verification after rotation.
type Keyring struct {
	signing map[int][]byte
	current int
}

// NewKeyring builds a keyring from the current secret plus any retired ones.
// Retired secrets get versions 1..n in the order given; the current secret is
// version n+1.
func NewKeyring(current string, retired ...string) (*Keyring, error) {
	if current == "" {
		return nil, errors.New("integrity: empty secret")
	}
	k := &Keyring{signing: make(map[int][]byte)}
	for i, s := range retired {
		if s == "" {
			return nil, fmt.Errorf("integrity: empty retired secret at index %d", i)
		}
		k.signing[i+1] = deriveSigningKey(s)
	}
	k.current = len(retired) + 1
	k.signing[k.current] = deriveSigningKey(current)
	return k, nil
}

// Current returns the key version new records are written under.
func (k *Keyring) Current() int {
	return k.current
}

// SigningKey returns the HMAC key for the given version.
func (k *Keyring) SigningKey(version int) ([]byte, error) {
	key, ok := k.signing[version]
	if !ok {
		return nil, fmt.Errorf("integrity: %w %d", ErrUnknownKeyVersion, version)
	}
	return key, nil
}

// EncryptionKey returns the 256-bit AES key for the given version, derived
// from the signing key so both sides of the record share one secret source.
func (k *Keyring) EncryptionKey(version int) ([]byte, error) {
	signing, err := k.SigningKey(version)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte("encrypt:"))
	h.Write(signing)
	return h.Sum(nil), nil
}

func deriveSigningKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
