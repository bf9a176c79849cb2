package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/domain"
)

func TestGenerateKeyFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(key, "plk_"))
		require.Len(t, key, 36)
		require.True(t, wellFormedKey(key), "generated key must pass its own precheck: %q", key)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key generated: %q", key)
		seen[key] = struct{}{}
	}
}

func TestHashKeySaltSensitive(t *testing.T) {
	repo := newMemCapabilityRepo()
	svcA := NewCapabilityService(repo, testConfig())

	otherCfg := testConfig()
	otherCfg.Auth.KeySalt = "another-salt-fedcba9876543210"
	svcB := NewCapabilityService(repo, otherCfg)

	const plaintext = "plk_0123456789abcdefghijklmnopqrstuv"
	h1 := svcA.HashKey(plaintext)
	require.Len(t, h1, 64)
	require.Equal(t, h1, svcA.HashKey(plaintext), "hash must be deterministic")
	require.NotEqual(t, h1, svcB.HashKey(plaintext), "different salts must yield different hashes")
	require.NotEqual(t, h1, svcA.HashKey(plaintext+"x"))
}

func TestMintResolveRoundTrip(t *testing.T) {
	repo := newMemCapabilityRepo()
	caps := NewCapabilityService(repo, testConfig())

	plaintext, minted, err := caps.Mint(context.Background(), "ws1", domain.PermissionAppend, domain.ScopeFolder, "/team", MintOptions{
		BoundAuthor:  "alice",
		AllowedTypes: []string{domain.AppendTypeComment},
		WIPLimit:     3,
		ExpiresAt:    fixtureNow + 86_400_000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, minted.ID)
	require.Equal(t, caps.HashKey(plaintext), minted.KeyHash)
	require.Positive(t, minted.CreatedAt)

	resolved, err := caps.Resolve(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, minted.ID, resolved.ID)
	require.Equal(t, "ws1", resolved.WorkspaceID)
	require.Equal(t, domain.PermissionAppend, resolved.Permission)
	require.Equal(t, domain.ScopeFolder, resolved.ScopeType)
	require.Equal(t, "/team", resolved.ScopePath)
	require.Equal(t, "alice", resolved.BoundAuthor)
	require.Equal(t, []string{domain.AppendTypeComment}, resolved.AllowedTypes)
	require.Equal(t, 3, resolved.WIPLimit)
	require.Equal(t, fixtureNow+86_400_000, resolved.ExpiresAt)
}

func TestResolveRejectsEmptyAndUnknown(t *testing.T) {
	repo := newMemCapabilityRepo()
	caps := NewCapabilityService(repo, testConfig())

	_, err := caps.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Zero(t, repo.lookupCount(), "empty plaintext must not be hashed and looked up")

	_, err = caps.Resolve(context.Background(), "plk_"+strings.Repeat("Z", 32))
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Equal(t, 1, repo.lookupCount())
}

func TestMintTripleThreeTiers(t *testing.T) {
	repo := newMemCapabilityRepo()
	caps := NewCapabilityService(repo, testConfig())

	triple, err := caps.MintTriple(context.Background(), "ws1", domain.ScopeFile, "/team/todo.md")
	require.NoError(t, err)

	plaintexts := map[string]string{
		domain.PermissionRead:   triple.Read,
		domain.PermissionAppend: triple.Append,
		domain.PermissionWrite:  triple.Write,
	}
	seen := make(map[string]struct{})
	for wantPermission, plaintext := range plaintexts {
		require.NotEmpty(t, plaintext)
		_, dup := seen[plaintext]
		require.False(t, dup, "triple keys must be distinct")
		seen[plaintext] = struct{}{}

		key, err := caps.Resolve(context.Background(), plaintext)
		require.NoError(t, err)
		require.Equal(t, wantPermission, key.Permission)
		require.Equal(t, domain.ScopeFile, key.ScopeType)
		require.Equal(t, "/team/todo.md", key.ScopePath)
		require.Equal(t, "ws1", key.WorkspaceID)
	}
}

func TestRevokeCapabilityKey(t *testing.T) {
	repo := newMemCapabilityRepo()
	caps := NewCapabilityService(repo, testConfig())

	plaintext, minted, err := caps.Mint(context.Background(), "ws1", domain.PermissionRead, domain.ScopeWorkspace, "/", MintOptions{})
	require.NoError(t, err)

	ok, err := caps.Revoke(context.Background(), minted.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Resolve 仍返回记录，吊销判定归 Authz 层
	key, err := caps.Resolve(context.Background(), plaintext)
	require.NoError(t, err)
	require.True(t, key.IsRevoked())

	ok, err = caps.Revoke(context.Background(), minted.ID)
	require.NoError(t, err)
	require.False(t, ok, "second revoke is a no-op")

	ok, err = caps.Revoke(context.Background(), "no-such-id")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCapabilityKeyHelpers(t *testing.T) {
	key := &CapabilityKey{ScopeType: domain.ScopeWorkspace}
	require.False(t, key.IsExpired(fixtureNow), "zero ExpiresAt means never")
	require.True(t, key.HasValidScope())

	key.ExpiresAt = fixtureNow
	require.True(t, key.IsExpired(fixtureNow))
	require.False(t, key.IsExpired(fixtureNow-1))

	for _, tc := range []struct {
		scopeType string
		scopePath string
		valid     bool
	}{
		{domain.ScopeWorkspace, "", true},
		{domain.ScopeFile, "/a.md", true},
		{domain.ScopeFile, "", false},
		{domain.ScopeFolder, "/team", true},
		{domain.ScopeFolder, "", false},
		{"galaxy", "/a.md", false},
	} {
		k := &CapabilityKey{ScopeType: tc.scopeType, ScopePath: tc.scopePath}
		require.Equal(t, tc.valid, k.HasValidScope(), "scope=%s path=%q", tc.scopeType, tc.scopePath)
	}

	open := &CapabilityKey{}
	require.True(t, open.AllowsType(domain.AppendTypeTask))
	limited := &CapabilityKey{AllowedTypes: []string{domain.AppendTypeVote}}
	require.True(t, limited.AllowsType(domain.AppendTypeVote))
	require.False(t, limited.AllowsType(domain.AppendTypeTask))
}
