//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/service"
)

func TestCapabilityRepoRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewCapabilityRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	key := &service.CapabilityKey{
		ID:           uuid.NewString(),
		WorkspaceID:  ws.ID,
		KeyHash:      "hash-1",
		Permission:   "append",
		ScopeType:    "folder",
		ScopePath:    "/team",
		BoundAuthor:  "alice",
		AllowedTypes: []string{"comment", "vote"},
		WIPLimit:     3,
		ExpiresAt:    testEpochMS + 1000,
		CreatedAt:    testEpochMS,
	}
	require.NoError(t, repo.Create(ctx, key))

	got, err := repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)
	require.Equal(t, "append", got.Permission)
	require.Equal(t, "folder", got.ScopeType)
	require.Equal(t, "/team", got.ScopePath)
	require.Equal(t, "alice", got.BoundAuthor)
	require.Equal(t, []string{"comment", "vote"}, got.AllowedTypes)
	require.Equal(t, 3, got.WIPLimit)
	require.Equal(t, testEpochMS+1000, got.ExpiresAt)
	require.Zero(t, got.RevokedAt)

	_, err = repo.GetByHash(ctx, "unknown-hash")
	require.ErrorIs(t, err, service.ErrCapabilityNotFound)
}

func TestCapabilityRepoEmptyAllowedTypes(t *testing.T) {
	db := newTestDB(t)
	repo := NewCapabilityRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	require.NoError(t, repo.Create(ctx, &service.CapabilityKey{
		ID: uuid.NewString(), WorkspaceID: ws.ID, KeyHash: "hash-2",
		Permission: "read", ScopeType: "workspace", ScopePath: "/",
		CreatedAt: testEpochMS,
	}))

	got, err := repo.GetByHash(ctx, "hash-2")
	require.NoError(t, err)
	require.Nil(t, got.AllowedTypes, "empty allowlist round-trips as nil")
}

func TestCapabilityRepoHashUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewCapabilityRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	mk := func() *service.CapabilityKey {
		return &service.CapabilityKey{
			ID: uuid.NewString(), WorkspaceID: ws.ID, KeyHash: "dup-hash",
			Permission: "read", ScopeType: "workspace", ScopePath: "/",
			CreatedAt: testEpochMS,
		}
	}
	require.NoError(t, repo.Create(ctx, mk()))
	require.Error(t, repo.Create(ctx, mk()), "key_hash carries a UNIQUE constraint")
}

func TestCapabilityRepoRevoke(t *testing.T) {
	db := newTestDB(t)
	repo := NewCapabilityRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	key := &service.CapabilityKey{
		ID: uuid.NewString(), WorkspaceID: ws.ID, KeyHash: "hash-3",
		Permission: "write", ScopeType: "workspace", ScopePath: "/",
		CreatedAt: testEpochMS,
	}
	require.NoError(t, repo.Create(ctx, key))

	ok, err := repo.Revoke(ctx, key.ID, testEpochMS+5)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByHash(ctx, "hash-3")
	require.NoError(t, err)
	require.Equal(t, testEpochMS+5, got.RevokedAt)

	ok, err = repo.Revoke(ctx, key.ID, testEpochMS+6)
	require.NoError(t, err)
	require.False(t, ok, "revoke is first-writer-wins")

	ok, err = repo.Revoke(ctx, "no-such-id", testEpochMS+7)
	require.NoError(t, err)
	require.False(t, ok)
}
