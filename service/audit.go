package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"election-portal/models"
)

// AuditStore persists and counts audit events.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	CountRecentEvents(ctx context.Context, ip, action string, since time.Time) (int64, error)
}

// Auditor records security events and answers rate-limit questions from the
// same trail. Recording never fails the caller's operation.
type Auditor struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditor(store AuditStore) *Auditor {
	return &Auditor{store: store, now: time.Now}
}

// Record appends one audit event. Details must not contain candidate choices
// in cleartext; callers pass redacted maps.
func (a *Auditor) Record(ctx context.Context, action string, details map[string]any, userID, adminID *uint, ip, ua string) {
	entry := &models.AuditLog{
		UserID:    userID,
		AdminID:   adminID,
		Action:    action,
		IPAddress: ip,
		UserAgent: ua,
		CreatedAt: a.now(),
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			log.Printf("audit: marshal details for %s: %v", action, err)
		} else {
			entry.NewValues = string(data)
		}
	}
	if err := a.store.AppendAuditLog(ctx, entry); err != nil {
		log.Printf("audit: append %s: %v", action, err)
	}
}

// Allow reports whether the IP is still inside its budget of `limit` events
// of the given action within the trailing window. A storage failure is logged
// and treated as allowed rather than locking everyone out.
func (a *Auditor) Allow(ctx context.Context, ip, action string, limit int64, window time.Duration) bool {
	n, err := a.store.CountRecentEvents(ctx, ip, action, a.now().Add(-window))
	if err != nil {
		log.Printf("audit: rate limit query for %s: %v", action, err)
		return true
	}
	return n < limit
}
