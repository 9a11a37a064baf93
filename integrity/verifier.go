package integrity

import (
	"context"
	"crypto/hmac"
	"errors"
	"time"

	"election-portal/models"
)

// ErrNotFound reports a missing vote or integrity record.
var ErrNotFound = errors.New("vote record not found")

// clock skew tolerated between the vote row and its integrity row
const timestampTolerance = 5 * time.Second

// VerifyStore is the read-only view the verifier needs.
type VerifyStore interface {
	VoteWithIntegrity(ctx context.Context, voteID uint) (*models.Vote, *models.VoteIntegrity, error)
	CountOtherBallots(ctx context.Context, userID uint, position string, excludeVoteID uint) (int64, error)
}

// VerifyResult is the outcome of one integrity check. "Invalid" is a normal
// result communicated here, never an error; only storage failures surface as
// Go errors from Verify.
type VerifyResult struct {
	Valid             bool     `json:"valid"`
	SignatureValid    bool     `json:"signature_valid"`
	ChainValid        bool     `json:"chain_valid"`
	TamperingDetected bool     `json:"tampering_detected"`
	Details           []string `json:"verification_details"`
	Error             string   `json:"error,omitempty"`
}

// Verifier re-derives hash and signature from persisted data and flags
// inconsistencies. It never mutates state.
type Verifier struct {
	store  VerifyStore
	signer *Signer
	enc    *Encryptor
}

func NewVerifier(store VerifyStore, keys *Keyring) *Verifier {
	return &Verifier{store: store, signer: NewSigner(keys), enc: NewEncryptor(keys)}
}

// Verify checks the stored signature, the fingerprint hash and the tamper
// heuristics for one ballot.
func (v *Verifier) Verify(ctx context.Context, voteID uint) (*VerifyResult, error) {
	vote, rec, err := v.store.VoteWithIntegrity(ctx, voteID)
	if errors.Is(err, ErrNotFound) {
		return &VerifyResult{Valid: false, Error: ErrNotFound.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Details: []string{}}

	// Signature: requires the decrypted plaintext set. A blob that fails to
	// decode is itself a tamper finding.
	data, decErr := v.enc.Decrypt(rec.EncryptedData, rec.KeyVersion)
	switch {
	case decErr == nil:
		result.SignatureValid = v.signer.Verify(BallotData{
			UserID:      data.UserID,
			CandidateID: data.CandidateID,
			Position:    vote.Position,
			IPAddress:   data.IPAddress,
			UserAgent:   data.UserAgent,
		}, rec.SignatureValue, rec.KeyVersion)
	case errors.Is(decErr, ErrCorruptRecord):
		result.Details = append(result.Details, ErrCorruptRecord.Error())
	case errors.Is(decErr, ErrUnknownKeyVersion):
		// a tampered key_version column is a finding, not a failure
		result.Details = append(result.Details, ErrUnknownKeyVersion.Error())
	default:
		return nil, decErr
	}

	// Chain: the canonical re-serialization of the stored fingerprint must
	// hash back to the stored value.
	if canonical, err := CanonicalizeJSON([]byte(rec.FingerprintData)); err == nil {
		result.ChainValid = hmac.Equal([]byte(HashHex(canonical)), []byte(rec.HashValue))
	} else {
		result.Details = append(result.Details, "malformed fingerprint data")
	}

	// Tamper heuristics.
	if absDuration(vote.CreatedAt.Sub(rec.CreatedAt)) > timestampTolerance {
		result.Details = append(result.Details, "timestamp mismatch detected")
	}
	if !hmac.Equal([]byte(vote.VoteHash), []byte(rec.HashValue)) {
		result.Details = append(result.Details, "hash value mismatch")
	}
	others, err := v.store.CountOtherBallots(ctx, vote.UserID, vote.Position, vote.ID)
	if err != nil {
		return nil, err
	}
	if others > 0 {
		result.Details = append(result.Details, "multiple votes detected for same position")
	}

	result.TamperingDetected = len(result.Details) > 0
	result.Valid = result.SignatureValid && result.ChainValid && !result.TamperingDetected
	return result, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
