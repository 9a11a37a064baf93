package models

import "time"

// Vote is one voter's choice for one position. The application enforces at
// most one vote per (user, position) before insert; there is deliberately no
// unique constraint, so the verifier treats extra rows as a tamper signal.
type Vote struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	CandidateID uint      `gorm:"not null;index" json:"candidate_id"`
	Position    string    `gorm:"size:64;not null;index" json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	IPAddress   string    `gorm:"size:45" json:"-"`
	UserAgent   string    `gorm:"size:255" json:"-"`
	VoteHash    string    `gorm:"size:64;index;column:vote_hash" json:"vote_hash"`
}

func (Vote) TableName() string {
	return "votes"
}

// VoteIntegrity is the cryptographic companion row to a Vote, written in the
// same transaction. FingerprintData is the canonical JSON whose SHA-256 must
// reproduce HashValue; EncryptedData holds the AES-256-CBC blob carrying the
// plaintext voter/candidate/client fields. KeyVersion selects the keyring
// entry the signature and blob were produced under.
type VoteIntegrity struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	VoteID          uint      `gorm:"not null;index" json:"vote_id"`
	HashValue       string    `gorm:"size:64;not null;index" json:"hash_value"`
	SignatureValue  string    `gorm:"size:64;not null" json:"signature_value"`
	FingerprintData string    `gorm:"type:text;not null" json:"fingerprint_data"`
	EncryptedData   string    `gorm:"type:text;not null" json:"-"`
	KeyVersion      int       `gorm:"not null;default:1" json:"key_version"`
	CreatedAt       time.Time `json:"created_at"`
}

func (VoteIntegrity) TableName() string {
	return "vote_integrity"
}

// VerificationToken stores the digest of an issued voter-facing token so
// validation is an indexed lookup with an explicit expiry instead of a
// re-derivation sweep over a trailing time window.
type VerificationToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	VoteID    uint       `gorm:"not null;index" json:"vote_id"`
	TokenHash string     `gorm:"size:64;not null;index" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}
