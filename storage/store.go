package storage

import (
	"context"
	"errors"
	"time"

	"election-portal/integrity"
	"election-portal/models"

	"gorm.io/gorm"
)

// ledgerLockKey is the advisory lock id serializing integrity-record appends.
// Without it two concurrent casts could read the same chain tail and fork the
// chain.
const ledgerLockKey = 0x766f7465 // "vote"

// Store wraps a gorm handle and implements the storage interfaces consumed by
// the integrity and service layers.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- integrity.LedgerStore ---

type ledgerTx struct {
	tx *gorm.DB
}

// CastTx runs fn inside one transaction with the append lock held.
func (s *Store) CastTx(ctx context.Context, fn func(tx integrity.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", ledgerLockKey).Error; err != nil {
			return err
		}
		return fn(&ledgerTx{tx: tx})
	})
}

func (t *ledgerTx) TailHash() (*string, error) {
	var rec models.VoteIntegrity
	err := t.tx.Order("created_at DESC, id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec.HashValue, nil
}

func (t *ledgerTx) InsertVote(v *models.Vote) error {
	return t.tx.Create(v).Error
}

func (t *ledgerTx) InsertIntegrity(rec *models.VoteIntegrity) error {
	return t.tx.Create(rec).Error
}

func (t *ledgerTx) InsertToken(tok *models.VerificationToken) error {
	return t.tx.Create(tok).Error
}

func (t *ledgerTx) AppendAudit(entry *models.AuditLog) error {
	return t.tx.Create(entry).Error
}

// --- integrity.VerifyStore / ReportStore / TokenStore ---

func (s *Store) VoteWithIntegrity(ctx context.Context, voteID uint) (*models.Vote, *models.VoteIntegrity, error) {
	var vote models.Vote
	if err := s.db.WithContext(ctx).First(&vote, voteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, integrity.ErrNotFound
		}
		return nil, nil, err
	}
	var rec models.VoteIntegrity
	if err := s.db.WithContext(ctx).Where("vote_id = ?", voteID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, integrity.ErrNotFound
		}
		return nil, nil, err
	}
	return &vote, &rec, nil
}

func (s *Store) CountOtherBallots(ctx context.Context, userID uint, position string, excludeVoteID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND position = ? AND id <> ?", userID, position, excludeVoteID).
		Count(&n).Error
	return n, err
}

func (s *Store) VotesOrdered(ctx context.Context) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&votes).Error
	return votes, err
}

func (s *Store) IntegrityRecordsOrdered(ctx context.Context) ([]models.VoteIntegrity, error) {
	var recs []models.VoteIntegrity
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error
	return recs, err
}

func (s *Store) TokensByVote(ctx context.Context, voteID uint) ([]models.VerificationToken, error) {
	var rows []models.VerificationToken
	err := s.db.WithContext(ctx).Where("vote_id = ?", voteID).Find(&rows).Error
	return rows, err
}

// --- users / admins ---

// ErrNoRow reports a lookup miss for portal entities.
var ErrNoRow = errors.New("storage: not found")

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Save(u).Error
}

func (s *Store) DeleteUser(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Delete(&models.User{}, userID).Error
}

func (s *Store) AdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var a models.Admin
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveAdmin(ctx context.Context, a *models.Admin) error {
	return s.db.WithContext(ctx).Save(a).Error
}

// --- nominations ---

func (s *Store) CreateNomination(ctx context.Context, n *models.Nomination) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *Store) NominationByID(ctx context.Context, id uint) (*models.Nomination, error) {
	var n models.Nomination
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &n, nil
}

func (s *Store) SaveNomination(ctx context.Context, n *models.Nomination) error {
	return s.db.WithContext(ctx).Save(n).Error
}

func (s *Store) DeleteNomination(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Nomination{}, id).Error
}

func (s *Store) Nominations(ctx context.Context, approvedOnly bool) ([]models.Nomination, error) {
	var noms []models.Nomination
	q := s.db.WithContext(ctx).Order("position, candidate_name")
	if approvedOnly {
		q = q.Where("is_approved = ?", true)
	}
	err := q.Find(&noms).Error
	return noms, err
}

// NominationForUserPosition returns a user's existing nomination for a
// position, if any.
func (s *Store) NominationForUserPosition(ctx context.Context, userID uint, position string) (*models.Nomination, error) {
	var n models.Nomination
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND position = ?", userID, position).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRow
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ApprovedPositions returns the distinct positions that have at least one
// approved candidate.
func (s *Store) ApprovedPositions(ctx context.Context) ([]string, error) {
	var positions []string
	err := s.db.WithContext(ctx).Model(&models.Nomination{}).
		Where("is_approved = ?", true).
		Distinct("position").
		Order("position").
		Pluck("position", &positions).Error
	return positions, err
}

// ApprovedCandidate returns the nomination only if it is approved for the
// given position.
func (s *Store) ApprovedCandidate(ctx context.Context, id uint, position string) (*models.Nomination, error) {
	var n models.Nomination
	err := s.db.WithContext(ctx).
		Where("id = ? AND position = ? AND is_approved = ?", id, position, true).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRow
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// --- votes / results ---

func (s *Store) HasVoted(ctx context.Context, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Vote{}).Where("user_id = ?", userID).Count(&n).Error
	return n > 0, err
}

// VoteCountsByCandidate returns candidate id -> ballot count.
func (s *Store) VoteCountsByCandidate(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		CandidateID uint
		N           int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Select("candidate_id, count(*) as n").
		Group("candidate_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.CandidateID] = r.N
	}
	return counts, nil
}

// StatsCounts is the aggregate election activity snapshot.
type StatsCounts struct {
	RegisteredUsers int64 `json:"total_registered_users"`
	DistinctVoters  int64 `json:"total_voters"`
	Candidates      int64 `json:"total_candidates"`
	VotesCast       int64 `json:"total_votes_cast"`
	Positions       int64 `json:"total_positions"`
}

func (s *Store) Stats(ctx context.Context) (*StatsCounts, error) {
	var stats StatsCounts
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&stats.RegisteredUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Vote{}).Distinct("user_id").Count(&stats.DistinctVoters).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Nomination{}).Where("is_approved = ?", true).Count(&stats.Candidates).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Vote{}).Count(&stats.VotesCast).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Nomination{}).Where("is_approved = ?", true).Distinct("position").Count(&stats.Positions).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// DeleteVote removes a ballot and its integrity and token rows in one
// transaction, reporting ErrNoRow for unknown ids. The hash chain stays
// broken at that point; the report counts the break.
func (s *Store) DeleteVote(ctx context.Context, voteID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Vote{}, voteID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoRow
		}
		if err := tx.Where("vote_id = ?", voteID).Delete(&models.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Where("vote_id = ?", voteID).Delete(&models.VoteIntegrity{}).Error
	})
}

// --- audit / rate limiting ---

func (s *Store) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// CountRecentEvents counts audit rows for an IP+action since the given time;
// the rate limiter reads its budget out of the audit trail.
func (s *Store) CountRecentEvents(ctx context.Context, ip, action string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("ip_address = ? AND action = ? AND created_at > ?", ip, action, since).
		Count(&n).Error
	return n, err
}

// --- election settings ---

func (s *Store) Settings(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []models.ElectionSetting
	err := s.db.WithContext(ctx).Where("setting_key IN ?", keys).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, r := range rows {
		settings[r.Key] = r.Value
	}
	return settings, nil
}

func (s *Store) UpsertSetting(ctx context.Context, key, value string) error {
	setting := models.ElectionSetting{Key: key, Value: value}
	return s.db.WithContext(ctx).Save(&setting).Error
}
