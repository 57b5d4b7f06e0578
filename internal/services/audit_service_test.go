package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	svc, err := NewAuditService(db, WithAuditClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	officer := testOfficerID
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:    &officer,
		CaseID:    "case-1",
		Action:    AuditGuestLinkCreated,
		Details:   map[string]any{"link_id": "link-1"},
		IPAddress: " 10.0.0.1 ",
	}))
	clock.Advance(time.Minute)
	require.NoError(t, svc.Log(ctx, AuditEntry{
		CaseID:  "case-1",
		Action:  AuditGuestUpload,
		Details: map[string]any{"file_name": "photo.png"},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{CaseID: "case-2", Action: AuditGuestUpload}))

	trail, err := svc.List(ctx, AuditListOptions{CaseID: "case-1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), trail.Total)
	require.Equal(t, 1, trail.Page)
	require.Equal(t, defaultAuditPage, trail.PerPage)
	require.Len(t, trail.Logs, 2)
	require.Equal(t, AuditGuestUpload, trail.Logs[0].Action)
	require.Nil(t, trail.Logs[0].UserID)

	created := trail.Logs[1]
	require.NotNil(t, created.UserID)
	require.Equal(t, officer, *created.UserID)
	require.Equal(t, "10.0.0.1", created.IPAddress)
	require.True(t, created.CreatedAt.Equal(clock.Now().Add(-time.Minute)))

	var details map[string]any
	require.NoError(t, json.Unmarshal(created.Details, &details))
	require.Equal(t, "link-1", details["link_id"])

	trail, err = svc.List(ctx, AuditListOptions{Action: AuditGuestUpload})
	require.NoError(t, err)
	require.Equal(t, int64(2), trail.Total)

	trail, err = svc.List(ctx, AuditListOptions{CaseID: "case-1", Since: clock.Now()})
	require.NoError(t, err)
	require.Equal(t, int64(1), trail.Total)

	trail, err = svc.List(ctx, AuditListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), trail.Total)
	require.Len(t, trail.Logs, 1)

	trail, err = svc.List(ctx, AuditListOptions{CaseID: "case-9", Page: -3, PageSize: 5000})
	require.NoError(t, err)
	require.NotNil(t, trail.Logs)
	require.Empty(t, trail.Logs)
	require.Equal(t, 1, trail.Page)
	require.Equal(t, defaultAuditPage, trail.PerPage)
}

func TestAuditServiceRequiresAction(t *testing.T) {
	svc, err := NewAuditService(openServiceTestDB(t))
	require.NoError(t, err)
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: "  "}))

	_, err = NewAuditService(nil)
	require.Error(t, err)
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	svc, err := NewAuditService(db, WithAuditClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, AuditEntry{Action: "old.action"}))
	clock.Advance(10 * 24 * time.Hour)
	require.NoError(t, svc.Log(ctx, AuditEntry{Action: "recent.action"}))

	rows, err := svc.CleanupOlderThan(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	trail, err := svc.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), trail.Total)
	require.Equal(t, "recent.action", trail.Logs[0].Action)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}
