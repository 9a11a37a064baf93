package models

import "time"

// Nomination is a candidate entry for one position. Candidates only appear on
// the ballot once an administrator approves the nomination.
type Nomination struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        *uint      `gorm:"index" json:"user_id,omitempty"`
	CandidateName string     `gorm:"size:255;not null" json:"candidate_name"`
	Position      string     `gorm:"size:64;not null;index" json:"position"`
	Manifesto     string     `gorm:"type:text" json:"manifesto"`
	Photo         string     `gorm:"size:255" json:"photo,omitempty"`
	IsApproved    bool       `gorm:"not null;default:false;index" json:"is_approved"`
	ApprovedBy    *uint      `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (Nomination) TableName() string {
	return "nominations"
}
