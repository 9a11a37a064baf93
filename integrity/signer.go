package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BallotData is the plaintext field set a signature covers. It is rebuilt
// from the decrypted blob plus the ballot's position during verification.
type BallotData struct {
	UserID      uint   `json:"user_id"`
	CandidateID uint   `json:"candidate_id"`
	Position    string `json:"position"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

func (d BallotData) canonical() ([]byte, error) {
	// map marshal keeps key order deterministic
	return json.Marshal(map[string]any{
		"user_id":      d.UserID,
		"candidate_id": d.CandidateID,
		"position":     d.Position,
		"ip_address":   d.IPAddress,
		"user_agent":   d.UserAgent,
	})
}

// Signer computes keyed authentication codes over ballot data for tamper
// detection independent of the hash chain.
type Signer struct {
	keys *Keyring
}

func NewSigner(keys *Keyring) *Signer {
	return &Signer{keys: keys}
}

// Sign returns the hex HMAC-SHA256 of the canonical ballot data under the
// given key version.
func (s *Signer) Sign(data BallotData, version int) (string, error) {
	key, err := s.keys.SigningKey(version)
	if err != nil {
		return "", err
	}
	canonical, err := data.canonical()
	if err != nil {
		return "", fmt.Errorf("integrity: serialize ballot data: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify re-derives the code and compares in constant time. An unknown key
// version or mismatched code reports false, never an error to the caller.
func (s *Signer) Verify(data BallotData, signature string, version int) bool {
	expected, err := s.Sign(data, version)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
