package models

import "time"

// AuditLog records security-relevant events. NewValues holds a JSON details
// map; candidate choices are never written here in cleartext.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	AdminID   *uint     `gorm:"index" json:"admin_id,omitempty"`
	Action    string    `gorm:"size:64;not null;index" json:"action"`
	NewValues string    `gorm:"type:text" json:"new_values,omitempty"`
	IPAddress string    `gorm:"size:45;index" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// ElectionSetting is a key/value pair controlling the election lifecycle
// (voting_enabled, election_start_date, election_end_date, results_public).
type ElectionSetting struct {
	Key   string `gorm:"primaryKey;size:64;column:setting_key" json:"setting_key"`
	Value string `gorm:"size:255;column:setting_value" json:"setting_value"`
}

func (ElectionSetting) TableName() string {
	return "election_settings"
}
