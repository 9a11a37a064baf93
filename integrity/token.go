package integrity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"election-portal/models"
)

// TokenStore looks up persisted token digests for a ballot.
type TokenStore interface {
	TokensByVote(ctx context.Context, voteID uint) ([]models.VerificationToken, error)
}

// TokenCodec issues and validates the bounded-lifetime tokens voters present
// to re-check their ballot without re-authenticating. The token itself is a
// recomputable keyed code; its digest is persisted with an explicit expiry so
// validation is an indexed lookup rather than a re-derivation sweep.
type TokenCodec struct {
	keys *Keyring
	ttl  time.Duration
	now  func() time.Time
}

func NewTokenCodec(keys *Keyring, ttl time.Duration) *TokenCodec {
	return &TokenCodec{keys: keys, ttl: ttl, now: time.Now}
}

// TTL returns the validity window of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue derives the token for a ballot id and record hash at issuedAt.
func (c *TokenCodec) Issue(voteID uint, hash string, issuedAt time.Time) (string, error) {
	key, err := c.keys.SigningKey(c.keys.Current())
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%d|%s|%d", voteID, hash, issuedAt.Unix())
	code := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(code)), nil
}

// Digest returns the hex SHA-256 of a token, the form stored in
// verification_tokens.
func (c *TokenCodec) Digest(token string) string {
	return HashHex([]byte(token))
}

// Validate checks a presented token against the persisted digests for the
// ballot. It returns false for unknown ballots, digest mismatches and expired
// tokens; an error means the store was unreachable.
func (c *TokenCodec) Validate(ctx context.Context, store TokenStore, voteID uint, token string) (bool, error) {
	rows, err := store.TokensByVote(ctx, voteID)
	if err != nil {
		return false, fmt.Errorf("integrity: load tokens: %w", err)
	}

	digest := []byte(c.Digest(token))
	now := c.now()
	for _, row := range rows {
		if !hmac.Equal(digest, []byte(row.TokenHash)) {
			continue
		}
		if now.After(row.ExpiresAt) {
			return false, nil
		}
		return true, nil
	}
	return false, nil
}
