package integrity

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-portal/models"
)

type tokenStoreStub struct {
	rows []models.VerificationToken
	err  error
}

func (s *tokenStoreStub) TokensByVote(_ context.Context, voteID uint) ([]models.VerificationToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.VerificationToken
	for _, r := range s.rows {
		if r.VoteID == voteID {
			out = append(out, r)
		}
	}
	return out, nil
}

func issueTestToken(t *testing.T, c *TokenCodec, voteID uint, issuedAt time.Time) (string, *tokenStoreStub) {
	t.Helper()
	token, err := c.Issue(voteID, "aabb", issuedAt)
	require.NoError(t, err)
	return token, &tokenStoreStub{rows: []models.VerificationToken{{
		ID:        1,
		VoteID:    voteID,
		TokenHash: c.Digest(token),
		CreatedAt: issuedAt,
		ExpiresAt: issuedAt.Add(c.TTL()),
	}}}
}

func TestTokenCodec_IssueIsRecomputable(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	issuedAt := time.Unix(1700000000, 0)

	token1, err := c.Issue(41, "ffee", issuedAt)
	require.NoError(t, err)
	token2, err := c.Issue(41, "ffee", issuedAt)
	require.NoError(t, err)
	assert.Equal(t, token1, token2)

	// base64 over a hex mac
	decoded, err := base64.StdEncoding.DecodeString(token1)
	require.NoError(t, err)
	assert.Len(t, decoded, 64)
}

func TestTokenCodec_ValidateAcceptsInsideWindow(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	issuedAt := time.Unix(1700000000, 0)
	token, store := issueTestToken(t, c, 41, issuedAt)

	for _, offset := range []time.Duration{0, 30 * time.Second, 5*time.Minute - time.Second} {
		c.now = func() time.Time { return issuedAt.Add(offset) }
		ok, err := c.Validate(context.Background(), store, 41, token)
		require.NoError(t, err)
		assert.True(t, ok, "offset %s", offset)
	}
}

func TestTokenCodec_ValidateRejectsExpired(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	issuedAt := time.Unix(1700000000, 0)
	token, store := issueTestToken(t, c, 41, issuedAt)

	c.now = func() time.Time { return issuedAt.Add(5*time.Minute + time.Second) }
	ok, err := c.Validate(context.Background(), store, 41, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCodec_ValidateRejectsWrongBallot(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	issuedAt := time.Unix(1700000000, 0)
	token, store := issueTestToken(t, c, 41, issuedAt)

	c.now = func() time.Time { return issuedAt }
	ok, err := c.Validate(context.Background(), store, 42, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCodec_ValidateRejectsForgedToken(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	issuedAt := time.Unix(1700000000, 0)
	_, store := issueTestToken(t, c, 41, issuedAt)

	c.now = func() time.Time { return issuedAt }
	forged := base64.StdEncoding.EncodeToString([]byte("0000"))
	ok, err := c.Validate(context.Background(), store, 41, forged)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCodec_ValidateSurfacesStoreFailure(t *testing.T) {
	c := NewTokenCodec(testKeyring(t), 5*time.Minute)
	store := &tokenStoreStub{err: errors.New("connection refused")}

	_, err := c.Validate(context.Background(), store, 41, "whatever")
	assert.Error(t, err)
}
