package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditor_RecordAppendsEntry(t *testing.T) {
	store := newFakeStore()
	a := NewAuditor(store)

	userID := uint(7)
	a.Record(context.Background(), "login_success", map[string]any{"username": "20230001"}, &userID, nil, testIP, testUA)

	require.Len(t, store.audits, 1)
	entry := store.audits[0]
	assert.Equal(t, "login_success", entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, userID, *entry.UserID)
	assert.Equal(t, testIP, entry.IPAddress)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(entry.NewValues), &details))
	assert.Equal(t, "20230001", details["username"])
}

func TestAuditor_RecordWithoutDetails(t *testing.T) {
	store := newFakeStore()
	a := NewAuditor(store)

	a.Record(context.Background(), "logout", nil, nil, nil, testIP, testUA)

	require.Len(t, store.audits, 1)
	assert.Empty(t, store.audits[0].NewValues)
}

func TestAuditor_AllowCountsWithinWindow(t *testing.T) {
	store := newFakeStore()
	a := NewAuditor(store)
	ctx := context.Background()

	assert.True(t, a.Allow(ctx, testIP, "login_attempt", 2, 5*time.Minute))

	a.Record(ctx, "login_attempt", nil, nil, nil, testIP, testUA)
	assert.True(t, a.Allow(ctx, testIP, "login_attempt", 2, 5*time.Minute))

	a.Record(ctx, "login_attempt", nil, nil, nil, testIP, testUA)
	assert.False(t, a.Allow(ctx, testIP, "login_attempt", 2, 5*time.Minute))

	// other actions and other IPs have their own budgets
	assert.True(t, a.Allow(ctx, testIP, "vote_attempt", 2, 5*time.Minute))
	assert.True(t, a.Allow(ctx, "203.0.113.9", "login_attempt", 2, 5*time.Minute))
}

func TestAuditor_AllowFailsOpenOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.countErr = errors.New("connection refused")
	a := NewAuditor(store)

	assert.True(t, a.Allow(context.Background(), testIP, "login_attempt", 1, time.Minute))
}
