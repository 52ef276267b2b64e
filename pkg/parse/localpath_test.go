package parse

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sriram-PR/index-mirror/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLocalPath(t *testing.T) {
	root := filepath.Join("out", "mirror")
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"RootFile", "http://example.com/file.txt", filepath.Join(root, "file.txt")},
		{"NestedFile", "http://example.com/pub/a/b.iso", filepath.Join(root, "pub", "a", "b.iso")},
		{"TrailingSlashStripped", "http://example.com/pub/dir/", filepath.Join(root, "pub", "dir")},
		{"PercentDecoded", "http://example.com/my%20file.txt", filepath.Join(root, "my file.txt")},
		{"QueryIgnored", "http://example.com/a.txt?x=1", filepath.Join(root, "a.txt")},
		{"DotSlashStripped", "http://example.com/./a/./b.txt", filepath.Join(root, "a", "b.txt")},
		{"EncodedSlashStaysInSegment", "http://example.com/a%2Fb.txt", filepath.Join(root, "a_b.txt")},
		{"EncodedDotSegmentDropped", "http://example.com/x/%2E%2E/y.txt", filepath.Join(root, "x", "y.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToLocalPath(tt.url, root)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToLocalPath_TraversalSafe(t *testing.T) {
	root := t.TempDir()
	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)

	urls := []string{
		"http://example.com/../segment/../../etc/passwd",
		"http://example.com/a/../../../../etc/shadow",
		"http://example.com/....//....//etc/hosts",
		"http://example.com/%2e%2e/%2e%2e/etc/passwd",
		"http://example.com/a/..",
		"http://example.com/..%2f..%2fetc%2fpasswd",
		`http://example.com/..%5c..%5cwindows`,
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			got, err := ToLocalPath(u, root)
			if err != nil {
				assert.ErrorIs(t, err, utils.ErrEmptyPath)
				return
			}
			absGot, err := filepath.Abs(got)
			require.NoError(t, err)
			rel, err := filepath.Rel(absRoot, absGot)
			require.NoError(t, err)
			assert.False(t, rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)),
				"%s escaped root as %s", u, got)
		})
	}
}

func TestToLocalPath_Deterministic(t *testing.T) {
	u := "http://example.com/pub/../x/./y.bin"
	first, err := ToLocalPath(u, "root")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ToLocalPath(u, "root")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestToLocalPath_EncodedSlashDoesNotCollideWithDirectory(t *testing.T) {
	flat, err := ToLocalPath("http://example.com/a%2Fb", "root")
	require.NoError(t, err)
	nested, err := ToLocalPath("http://example.com/a/b", "root")
	require.NoError(t, err)
	assert.NotEqual(t, nested, flat)
	assert.Equal(t, filepath.Join("root", "a_b"), flat)
}

func TestToLocalPath_DistinctURLsDistinctPaths(t *testing.T) {
	a, err := ToLocalPath("http://example.com/a/b.txt", "root")
	require.NoError(t, err)
	b, err := ToLocalPath("http://example.com/a/c.txt", "root")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestToLocalPath_EmptyPath(t *testing.T) {
	for _, u := range []string{"http://example.com/", "http://example.com", "http://example.com/../"} {
		_, err := ToLocalPath(u, "root")
		assert.ErrorIs(t, err, utils.ErrEmptyPath, u)
	}
}

func TestToLocalPath_InvalidURL(t *testing.T) {
	_, err := ToLocalPath("http://[::1", "root")
	assert.ErrorIs(t, err, utils.ErrParsing)
}
