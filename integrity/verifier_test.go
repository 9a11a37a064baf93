package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func castTestBallot(t *testing.T, ledger *Ledger, req CastRequest) *CastResult {
	t.Helper()
	res, err := ledger.CastBallot(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestVerify_FreshBallotIsValid(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{
		VoterID: 3, CandidateID: 8, Position: "president",
		IPAddress: "10.0.0.1", UserAgent: "go-test",
	})

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.ChainValid)
	assert.False(t, result.TamperingDetected)
	assert.Empty(t, result.Details)
	assert.Empty(t, result.Error)
}

func TestVerify_UnknownBallotReportsNotFound(t *testing.T) {
	_, store, keys := newTestLedger(t)

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), 999)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Equal(t, "vote record not found", result.Error)
}

func TestVerify_MutatedFingerprintBreaksChain(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].FingerprintData = `{"candidate_hash":"forged","nonce":123456,"position":"president","previous_hash":null,"timestamp":1700000000,"user_hash":"forged"}`

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.ChainValid)
	assert.True(t, result.SignatureValid, "signature covers the encrypted fields, not the fingerprint")
}

func TestVerify_MutatedHashValueFlagsMismatch(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].HashValue = "0000000000000000000000000000000000000000000000000000000000000000"

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.ChainValid)
	assert.True(t, result.TamperingDetected)
	assert.Contains(t, result.Details, "hash value mismatch")
}

func TestVerify_CorruptBlobIsATamperFinding(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].EncryptedData = "!!not a blob!!"

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.SignatureValid)
	assert.True(t, result.TamperingDetected)
	assert.Contains(t, result.Details, "corrupted record")
}

func TestVerify_TamperedKeyVersionIsATamperFinding(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].KeyVersion = 99

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err, "an unreadable key version must not surface as a failure")

	assert.False(t, result.Valid)
	assert.False(t, result.SignatureValid)
	assert.True(t, result.TamperingDetected)
	assert.Contains(t, result.Details, "unknown key version")
}

func TestVerify_TamperedSignatureFails(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].SignatureValue = "deadbeef"

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.SignatureValid)
	assert.True(t, result.ChainValid)
}

func TestVerify_TimestampSkewFlagged(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].CreatedAt = store.records[0].CreatedAt.Add(-10 * time.Second)

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.TamperingDetected)
	assert.Contains(t, result.Details, "timestamp mismatch detected")
}

func TestVerify_SmallTimestampSkewTolerated(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	res := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	store.records[0].CreatedAt = store.records[0].CreatedAt.Add(3 * time.Second)

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.True(t, result.Valid)
}

func TestVerify_DuplicateBallotsFlagBothButNotSingles(t *testing.T) {
	ledger, store, keys := newTestLedger(t)
	first := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	v := NewVerifier(store, keys)

	// a voter's only ballot never trips the duplicate heuristic
	result, err := v.Verify(context.Background(), first.VoteID)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// a second ballot for the same voter and position flags both
	second := castTestBallot(t, ledger, CastRequest{VoterID: 3, CandidateID: 9, Position: "president"})
	for _, id := range []uint{first.VoteID, second.VoteID} {
		result, err := v.Verify(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Details, "multiple votes detected for same position")
	}

	// same voter, different position is fine
	other := castTestBallot(t, ledger, CastRequest{VoterID: 4, CandidateID: 5, Position: "secretary"})
	result, err = v.Verify(context.Background(), other.VoteID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerify_RetiredKeyRecordsStillVerify(t *testing.T) {
	keys, err := NewKeyring("new-secret", "old-secret")
	require.NoError(t, err)
	store := &memStore{}

	// record written with the retired secret as current
	oldKeys, err := NewKeyring("old-secret")
	require.NoError(t, err)
	oldLedger := NewLedger(store, oldKeys, NewTokenCodec(oldKeys, 5*time.Minute))
	res := castTestBallot(t, oldLedger, CastRequest{VoterID: 3, CandidateID: 8, Position: "president"})

	v := NewVerifier(store, keys)
	result, err := v.Verify(context.Background(), res.VoteID)
	require.NoError(t, err)

	assert.True(t, result.Valid, "version 1 record must verify under the rotated keyring")
}
