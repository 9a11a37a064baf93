package integrity

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	nonceMin = 100000
	nonceMax = 999999
)

// Fingerprint is the structured data whose canonical digest becomes a
// record's hash. Voter and candidate ids appear only as one-way digests;
// PreviousHash links the record to the chain tail (nil for the genesis
// record).
type Fingerprint struct {
	Timestamp     int64   `json:"timestamp"`
	UserHash      string  `json:"user_hash"`
	Position      string  `json:"position"`
	CandidateHash string  `json:"candidate_hash"`
	PreviousHash  *string `json:"previous_hash"`
	Nonce         int64   `json:"nonce"`
}

// Canonical serializes the fingerprint as JSON with lexicographically sorted
// keys. Marshaling through a map gives the sorted-key guarantee.
func (f Fingerprint) Canonical() ([]byte, error) {
	m := map[string]any{
		"timestamp":      f.Timestamp,
		"user_hash":      f.UserHash,
		"position":       f.Position,
		"candidate_hash": f.CandidateHash,
		"nonce":          f.Nonce,
	}
	if f.PreviousHash != nil {
		m["previous_hash"] = *f.PreviousHash
	} else {
		m["previous_hash"] = nil
	}
	return json.Marshal(m)
}

// CanonicalizeJSON re-serializes stored fingerprint JSON into canonical form.
// Numbers are decoded as json.Number so their literals survive byte-exact.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("integrity: malformed fingerprint: %w", err)
	}
	return json.Marshal(m)
}

// HashHex returns the lowercase hex SHA-256 of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hasher derives fingerprints and record hashes. It is pure given its inputs:
// all variance comes from the clock and the nonce source.
type Hasher struct {
	now func() time.Time
}

func NewHasher() *Hasher {
	return &Hasher{now: time.Now}
}

// Fingerprint builds a fingerprint for the given ballot fields chained to
// prevHash, and returns it with its record hash and creation time. Two calls
// with identical inputs produce different hashes: the timestamp and nonce
// vary.
func (h *Hasher) Fingerprint(voterID, candidateID uint, position string, prevHash *string) (Fingerprint, string, time.Time, error) {
	ts := h.now()
	nonce, err := randomNonce()
	if err != nil {
		return Fingerprint{}, "", time.Time{}, fmt.Errorf("integrity: nonce: %w", err)
	}

	fp := Fingerprint{
		Timestamp:     ts.Unix(),
		UserHash:      HashHex([]byte(strconv.FormatUint(uint64(voterID), 10))),
		Position:      position,
		CandidateHash: HashHex([]byte(strconv.FormatUint(uint64(candidateID), 10))),
		PreviousHash:  prevHash,
		Nonce:         nonce,
	}

	canonical, err := fp.Canonical()
	if err != nil {
		return Fingerprint{}, "", time.Time{}, fmt.Errorf("integrity: serialize fingerprint: %w", err)
	}
	return fp, HashHex(canonical), ts, nil
}

func randomNonce() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(nonceMax-nonceMin+1))
	if err != nil {
		return 0, err
	}
	return n.Int64() + nonceMin, nil
}
