package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"election-portal/integrity"
	"election-portal/models"
	"election-portal/storage"
)

const settingTimeLayout = "2006-01-02 15:04:05"

var (
	ErrVotingDisabled   = errors.New("voting is currently disabled")
	ErrElectionInactive = errors.New("election is not currently active")
	ErrAlreadyVoted     = errors.New("you have already voted in this election")
	ErrNoCandidates     = errors.New("no candidates available for voting")
	ErrVoteRateLimited  = errors.New("please wait before attempting to vote again")
)

// VotingStore is the storage view the voting orchestrator needs on top of the
// ledger's own transaction interface.
type VotingStore interface {
	HasVoted(ctx context.Context, userID uint) (bool, error)
	ApprovedPositions(ctx context.Context) ([]string, error)
	ApprovedCandidate(ctx context.Context, id uint, position string) (*models.Nomination, error)
	Settings(ctx context.Context, keys ...string) (map[string]string, error)
}

// VotingService validates a ballot sheet and hands it to the integrity ledger.
type VotingService struct {
	store  VotingStore
	ledger *integrity.Ledger
	audit  *Auditor
	now    func() time.Time
}

func NewVotingService(store VotingStore, ledger *integrity.Ledger, audit *Auditor) *VotingService {
	return &VotingService{store: store, ledger: ledger, audit: audit, now: time.Now}
}

// CastVotes processes one voter's complete ballot sheet: a candidate choice
// for every position with approved candidates. On success it returns the
// per-position verification triples.
func (s *VotingService) CastVotes(ctx context.Context, userID uint, selections map[string]uint, ip, ua string) (map[string]integrity.CastResult, error) {
	if err := s.checkElectionOpen(ctx); err != nil {
		return nil, err
	}

	voted, err := s.store.HasVoted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if voted {
		s.audit.Record(ctx, "voting_attempt_already_voted", nil, &userID, nil, ip, ua)
		return nil, ErrAlreadyVoted
	}

	positions, err := s.store.ApprovedPositions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNoCandidates
	}

	var missing []string
	reqs := make([]integrity.CastRequest, 0, len(positions))
	for _, position := range positions {
		candidateID, ok := selections[position]
		if !ok || candidateID == 0 {
			missing = append(missing, position)
			continue
		}
		if _, err := s.store.ApprovedCandidate(ctx, candidateID, position); err != nil {
			if errors.Is(err, storage.ErrNoRow) {
				return nil, validationErrorf("invalid candidate selection for position: %s", position)
			}
			return nil, err
		}
		reqs = append(reqs, integrity.CastRequest{
			VoterID:     userID,
			CandidateID: candidateID,
			Position:    position,
			IPAddress:   ip,
			UserAgent:   ua,
		})
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, validationErrorf("please select a candidate for all positions, missing: %s", strings.Join(missing, ", "))
	}

	// One submission attempt per IP per minute.
	if !s.audit.Allow(ctx, ip, "vote_attempt", 1, time.Minute) {
		s.audit.Record(ctx, "voting_rate_limit_exceeded", nil, &userID, nil, ip, ua)
		return nil, ErrVoteRateLimited
	}
	s.audit.Record(ctx, "vote_attempt", nil, &userID, nil, ip, ua)

	results, err := s.ledger.CastBallots(ctx, reqs)
	if err != nil {
		s.audit.Record(ctx, "vote_cast_failed", map[string]any{"error": err.Error()}, &userID, nil, ip, ua)
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	byPosition := make(map[string]integrity.CastResult, len(results))
	hashes := make([]string, 0, len(results))
	for i, res := range results {
		byPosition[reqs[i].Position] = res
		hashes = append(hashes, res.Hash)
	}

	// Positions and hashes only; candidate choices never reach the audit log.
	s.audit.Record(ctx, "vote_cast_success_with_integrity", map[string]any{
		"vote_count":       len(results),
		"positions":        positions,
		"integrity_hashes": hashes,
	}, &userID, nil, ip, ua)

	return byPosition, nil
}

func (s *VotingService) checkElectionOpen(ctx context.Context) error {
	settings, err := s.store.Settings(ctx, "voting_enabled", "election_start_date", "election_end_date")
	if err != nil {
		return err
	}
	if settings["voting_enabled"] != "1" {
		return ErrVotingDisabled
	}

	now := s.now()
	// The date window is enforced only when both bounds are configured; a
	// lone start or end date is intentionally ignored.
	if start, ok := settings["election_start_date"]; ok {
		if end, ok := settings["election_end_date"]; ok {
			startAt, err1 := time.ParseInLocation(settingTimeLayout, start, now.Location())
			endAt, err2 := time.ParseInLocation(settingTimeLayout, end, now.Location())
			if err1 == nil && err2 == nil && (now.Before(startAt) || now.After(endAt)) {
				return ErrElectionInactive
			}
		}
	}
	return nil
}
