package pathutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "path/to/file.md", "/path/to/file.md"},
		{"leading slash kept", "/notes.md", "/notes.md"},
		{"collapse slashes", "//a///b//c.md", "/a/b/c.md"},
		{"trailing slash stripped", "/docs/", "/docs"},
		{"root stays root", "/", "/"},
		{"slashes only", "///", "/"},
		{"percent decoded once", "docs/%E4%BB%BB%E5%8A%A1.md", "/docs/任务.md"},
		{"space escape", "a%20b.md", "/a b.md"},
		{"empty becomes root", "", "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsTraversal(t *testing.T) {
	for _, in := range []string{
		"../etc/passwd",
		"a/../b.md",
		"a/%2e%2e/b.md",
		"a/%2E%2E/b.md",
		"a/%2E%2e/b.md",
		"%2e./secret.md",
	} {
		_, err := Normalize(in)
		require.ErrorIs(t, err, ErrTraversal, "input %q", in)
	}
}

func TestNormalizeRejectsMalformedEscapes(t *testing.T) {
	for _, in := range []string{
		"a%zz.md",
		"broken%2",
		"%C3%28.md", // invalid UTF-8 sequence
	} {
		_, err := Normalize(in)
		require.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestContainsPath(t *testing.T) {
	require.True(t, ContainsPath("/", "/anything/goes.md"))
	require.True(t, ContainsPath("/docs", "/docs"))
	require.True(t, ContainsPath("/docs", "/docs/a.md"))
	require.True(t, ContainsPath("/docs", "/docs/sub/b.md"))
	require.False(t, ContainsPath("/docs", "/docsx/a.md"))
	require.False(t, ContainsPath("/docs", "/"))
	require.False(t, ContainsPath("/docs/a.md", "/docs"))
}

func TestIsDirectChild(t *testing.T) {
	require.True(t, IsDirectChild("/docs", "/docs/a.md"))
	require.False(t, IsDirectChild("/docs", "/docs/sub/b.md"))
	require.False(t, IsDirectChild("/docs", "/docs"))
	require.True(t, IsDirectChild("/", "/a.md"))
	require.False(t, IsDirectChild("/", "/"))
}
