package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"election-portal/models"
)

// LedgerTx is the single-transaction view the ledger writer needs. The store
// must serialize concurrent CastTx calls so two ballots cannot both link to
// the same chain tail.
type LedgerTx interface {
	TailHash() (*string, error)
	InsertVote(v *models.Vote) error
	InsertIntegrity(rec *models.VoteIntegrity) error
	InsertToken(t *models.VerificationToken) error
	AppendAudit(entry *models.AuditLog) error
}

// LedgerStore runs fn inside one atomic transaction.
type LedgerStore interface {
	CastTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// CastRequest carries one validated ballot. The caller has already checked
// authentication, duplicate votes and the election window.
type CastRequest struct {
	VoterID     uint
	CandidateID uint
	Position    string
	IPAddress   string
	UserAgent   string
}

// CastResult is the triple handed back to the voter.
type CastResult struct {
	VoteID            uint   `json:"vote_id"`
	Hash              string `json:"hash"`
	VerificationToken string `json:"verification_token"`
}

// Ledger is the vote ledger writer: it owns creation of Vote+VoteIntegrity
// pairs and verification-token rows.
type Ledger struct {
	store  LedgerStore
	hasher *Hasher
	signer *Signer
	enc    *Encryptor
	tokens *TokenCodec
	keys   *Keyring
}

func NewLedger(store LedgerStore, keys *Keyring, tokens *TokenCodec) *Ledger {
	return &Ledger{
		store:  store,
		hasher: NewHasher(),
		signer: NewSigner(keys),
		enc:    NewEncryptor(keys),
		tokens: tokens,
		keys:   keys,
	}
}

// CastBallot persists one ballot plus its integrity record atomically and
// returns the voter-facing verification triple.
func (l *Ledger) CastBallot(ctx context.Context, req CastRequest) (*CastResult, error) {
	results, err := l.CastBallots(ctx, []CastRequest{req})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// CastBallots persists a whole ballot sheet in one transaction: either every
// position's rows land or none do. Records are chained in order, each
// embedding the hash of whichever record was written last.
func (l *Ledger) CastBallots(ctx context.Context, reqs []CastRequest) ([]CastResult, error) {
	if len(reqs) == 0 {
		return nil, errors.New("integrity: empty ballot sheet")
	}
	version := l.keys.Current()

	results := make([]CastResult, 0, len(reqs))
	err := l.store.CastTx(ctx, func(tx LedgerTx) error {
		for _, req := range reqs {
			res, err := l.castOne(tx, req, version)
			if err != nil {
				return err
			}
			results = append(results, *res)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: record vote: %w", err)
	}
	return results, nil
}

func (l *Ledger) castOne(tx LedgerTx, req CastRequest, version int) (*CastResult, error) {
	prevHash, err := tx.TailHash()
	if err != nil {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	fp, hash, ts, err := l.hasher.Fingerprint(req.VoterID, req.CandidateID, req.Position, prevHash)
	if err != nil {
		return nil, err
	}
	canonical, err := fp.Canonical()
	if err != nil {
		return nil, err
	}

	signature, err := l.signer.Sign(BallotData{
		UserID:      req.VoterID,
		CandidateID: req.CandidateID,
		Position:    req.Position,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}, version)
	if err != nil {
		return nil, err
	}

	blob, err := l.enc.Encrypt(SensitiveData{
		UserID:      req.VoterID,
		CandidateID: req.CandidateID,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}, version)
	if err != nil {
		return nil, err
	}

	vote := &models.Vote{
		UserID:      req.VoterID,
		CandidateID: req.CandidateID,
		Position:    req.Position,
		CreatedAt:   ts,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		VoteHash:    hash,
	}
	if err := tx.InsertVote(vote); err != nil {
		return nil, fmt.Errorf("insert vote: %w", err)
	}

	if err := tx.InsertIntegrity(&models.VoteIntegrity{
		VoteID:          vote.ID,
		HashValue:       hash,
		SignatureValue:  signature,
		FingerprintData: string(canonical),
		EncryptedData:   blob,
		KeyVersion:      version,
		CreatedAt:       ts,
	}); err != nil {
		return nil, fmt.Errorf("insert integrity record: %w", err)
	}

	token, err := l.tokens.Issue(vote.ID, hash, ts)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertToken(&models.VerificationToken{
		VoteID:    vote.ID,
		TokenHash: l.tokens.Digest(token),
		CreatedAt: ts,
		ExpiresAt: ts.Add(l.tokens.TTL()),
	}); err != nil {
		return nil, fmt.Errorf("insert verification token: %w", err)
	}

	// Audit detail stays free of the candidate choice; that only exists
	// inside the encrypted blob.
	details, err := json.Marshal(map[string]any{
		"vote_id":  vote.ID,
		"hash":     hash,
		"position": req.Position,
	})
	if err != nil {
		return nil, err
	}
	voterID := req.VoterID
	if err := tx.AppendAudit(&models.AuditLog{
		UserID:    &voterID,
		Action:    "vote_integrity_created",
		NewValues: string(details),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		CreatedAt: ts,
	}); err != nil {
		return nil, fmt.Errorf("append audit log: %w", err)
	}

	return &CastResult{VoteID: vote.ID, Hash: hash, VerificationToken: token}, nil
}
