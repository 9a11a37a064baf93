package service

import (
	"context"
	"sync"
	"time"

	"election-portal/integrity"
	"election-portal/models"
	"election-portal/storage"
)

// fakeStore is the in-memory storage double shared by the service tests. It
// implements the narrow store interfaces plus the ledger transaction surface,
// so voting tests run against a real integrity.Ledger.
type fakeStore struct {
	mu       sync.Mutex
	users    []*models.User
	admins   []*models.Admin
	noms     []*models.Nomination
	votes    []models.Vote
	records  []models.VoteIntegrity
	tokens   []models.VerificationToken
	audits   []models.AuditLog
	settings map[string]string

	countErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]string)}
}

// --- UserStore ---

func (s *fakeStore) UserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = uint(len(s.users) + 1)
	s.users = append(s.users, u)
	return nil
}

func (s *fakeStore) SaveUser(_ context.Context, _ *models.User) error { return nil }

func (s *fakeStore) AdminByUsername(_ context.Context, username string) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) SaveAdmin(_ context.Context, _ *models.Admin) error { return nil }

// --- AuditStore ---

func (s *fakeStore) AppendAuditLog(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uint(len(s.audits) + 1)
	s.audits = append(s.audits, *entry)
	return nil
}

func (s *fakeStore) CountRecentEvents(_ context.Context, ip, action string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	var n int64
	for _, e := range s.audits {
		if e.IPAddress == ip && e.Action == action && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audits))
	for _, e := range s.audits {
		out = append(out, e.Action)
	}
	return out
}

// --- NominationStore / ResultsStore ---

func (s *fakeStore) CreateNomination(_ context.Context, n *models.Nomination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.noms) + 1)
	s.noms = append(s.noms, n)
	return nil
}

func (s *fakeStore) NominationByID(_ context.Context, id uint) (*models.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.noms {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) NominationForUserPosition(_ context.Context, userID uint, position string) (*models.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.noms {
		if n.UserID != nil && *n.UserID == userID && n.Position == position {
			return n, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) SaveNomination(_ context.Context, _ *models.Nomination) error { return nil }

func (s *fakeStore) DeleteNomination(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Nomination
	for _, n := range s.noms {
		if n.ID != id {
			out = append(out, n)
		}
	}
	s.noms = out
	return nil
}

func (s *fakeStore) Nominations(_ context.Context, approvedOnly bool) ([]models.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Nomination
	for _, n := range s.noms {
		if !approvedOnly || n.IsApproved {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *fakeStore) VoteCountsByCandidate(_ context.Context) (map[uint]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uint]int64)
	for _, v := range s.votes {
		counts[v.CandidateID]++
	}
	return counts, nil
}

func (s *fakeStore) Stats(_ context.Context) (*storage.StatsCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &storage.StatsCounts{VotesCast: int64(len(s.votes))}
	for _, u := range s.users {
		if u.IsActive {
			stats.RegisteredUsers++
		}
	}
	voters := make(map[uint]struct{})
	positions := make(map[string]struct{})
	for _, v := range s.votes {
		voters[v.UserID] = struct{}{}
		positions[v.Position] = struct{}{}
	}
	stats.DistinctVoters = int64(len(voters))
	stats.Positions = int64(len(positions))
	for _, n := range s.noms {
		if n.IsApproved {
			stats.Candidates++
		}
	}
	return stats, nil
}

// --- VotingStore ---

func (s *fakeStore) HasVoted(_ context.Context, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ApprovedPositions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, n := range s.noms {
		if !n.IsApproved {
			continue
		}
		if _, ok := seen[n.Position]; ok {
			continue
		}
		seen[n.Position] = struct{}{}
		out = append(out, n.Position)
	}
	return out, nil
}

func (s *fakeStore) ApprovedCandidate(_ context.Context, id uint, position string) (*models.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.noms {
		if n.ID == id && n.Position == position && n.IsApproved {
			return n, nil
		}
	}
	return nil, storage.ErrNoRow
}

func (s *fakeStore) Settings(_ context.Context, keys ...string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := s.settings[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

// --- integrity.LedgerStore ---

type fakeTx struct {
	s *fakeStore
}

func (s *fakeStore) CastTx(_ context.Context, fn func(tx integrity.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, records := len(s.votes), len(s.records)
	tokens, audits := len(s.tokens), len(s.audits)
	if err := fn(&fakeTx{s: s}); err != nil {
		s.votes = s.votes[:votes]
		s.records = s.records[:records]
		s.tokens = s.tokens[:tokens]
		s.audits = s.audits[:audits]
		return err
	}
	return nil
}

func (tx *fakeTx) TailHash() (*string, error) {
	if len(tx.s.records) == 0 {
		return nil, nil
	}
	hash := tx.s.records[len(tx.s.records)-1].HashValue
	return &hash, nil
}

func (tx *fakeTx) InsertVote(v *models.Vote) error {
	v.ID = uint(len(tx.s.votes) + 1)
	tx.s.votes = append(tx.s.votes, *v)
	return nil
}

func (tx *fakeTx) InsertIntegrity(rec *models.VoteIntegrity) error {
	rec.ID = uint(len(tx.s.records) + 1)
	tx.s.records = append(tx.s.records, *rec)
	return nil
}

func (tx *fakeTx) InsertToken(tok *models.VerificationToken) error {
	tok.ID = uint(len(tx.s.tokens) + 1)
	tx.s.tokens = append(tx.s.tokens, *tok)
	return nil
}

func (tx *fakeTx) AppendAudit(entry *models.AuditLog) error {
	entry.ID = uint(len(tx.s.audits) + 1)
	tx.s.audits = append(tx.s.audits, *entry)
	return nil
}
