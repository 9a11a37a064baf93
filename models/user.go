package models

import "time"

// User is a registered student voter.
type User struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	Username            string `gorm:"size:32;uniqueIndex;not null" json:"username"`
	PasswordHash        string `gorm:"size:255;not null;column:password" json:"-"`
	Email               string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FullName            string `gorm:"size:255;not null" json:"full_name"`
	IsActive            bool   `gorm:"not null;default:true" json:"is_active"`
	FailedLoginAttempts int    `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Admin is a portal administrator. Admins live in their own table and never
// overlap with voter accounts.
type Admin struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	Username            string `gorm:"size:32;uniqueIndex;not null" json:"username"`
	PasswordHash        string `gorm:"size:255;not null;column:password" json:"-"`
	FullName            string `gorm:"size:255" json:"full_name"`
	FailedLoginAttempts int    `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (Admin) TableName() string {
	return "admins"
}
