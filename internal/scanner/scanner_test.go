package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0o644))
	}
}

func rels(t *testing.T, s *Scanner, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, ok := s.Rel(f)
		require.True(t, ok, f)
		out = append(out, rel)
	}
	return out
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"server/api/users/[id].get.go",
		"server/api/users/index.post.go",
		"server/api/users/helpers.go",
		"server/api/users/[id].get_test.go",
		"server/api/health.get.go",
		"server/api/health.patch.go",
		"server/api/internal/debug.get.go",
		"server/api/vendor/lib/x.get.go",
		"server/api/testdata/fixture.get.go",
		"server/api/mocks/user_mock.get.go",
		"server/other.get.go",
	)

	tests := []struct {
		name   string
		ignore []string
		want   []string
	}{
		{
			name: "no ignores",
			want: []string{
				"health.get.go",
				"internal/debug.get.go",
				"mocks/user_mock.get.go",
				"users/[id].get.go",
				"users/index.post.go",
			},
		},
		{
			name:   "directory and suffix globs",
			ignore: []string{"internal/**", "**/*_mock.*.go"},
			want: []string{
				"health.get.go",
				"users/[id].get.go",
				"users/index.post.go",
			},
		},
		{
			name:   "bracket literal",
			ignore: []string{"users/\\[id\\].get.go"},
			want: []string{
				"health.get.go",
				"internal/debug.get.go",
				"mocks/user_mock.get.go",
				"users/index.post.go",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(root, "server/api", tt.ignore)
			require.NoError(t, err)

			files, err := s.Scan()
			require.NoError(t, err)
			assert.Equal(t, tt.want, rels(t, s, files))
			for _, f := range files {
				assert.True(t, filepath.IsAbs(f))
				assert.True(t, s.Matches(f), f)
			}
		})
	}
}

func TestScanMissingSource(t *testing.T) {
	files, err := Scan(t.TempDir(), "server/api", nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInvalidPattern(t *testing.T) {
	_, err := New(t.TempDir(), "api", []string{"[unclosed"})
	assert.ErrorContains(t, err, "invalid ignore pattern")
}

func TestMatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0o755))
	s, err := New(root, "api", []string{"private/**"})
	require.NoError(t, err)
	src := s.Source()

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(src, "a.get.go"), true},
		{filepath.Join(src, "a", "[id].delete.go"), true},
		{filepath.Join(src, "a.go"), false},
		{filepath.Join(src, "a.get_test.go"), false},
		{filepath.Join(src, "private", "a.get.go"), false},
		{filepath.Join(src, "vendor", "a.get.go"), false},
		{filepath.Join(root, "a.get.go"), false},
		{src, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Matches(tt.path))
		})
	}
	assert.True(t, s.Exists())
}
