package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "deeper", "out.go")

	require.NoError(t, WriteFileAtomic(target, []byte("package out\n"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "package out\n", string(data))

	// No temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.go")
	require.NoError(t, WriteFileAtomic(target, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(target, []byte("two"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestWriteIfChanged(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.go")

	wrote, err := WriteIfChanged(target, []byte("a"), 0o644)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = WriteIfChanged(target, []byte("a"), 0o644)
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = WriteIfChanged(target, []byte("b"), 0o644)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestRemove(t *testing.T) {
	target := filepath.Join(t.TempDir(), "gone.go")
	assert.NoError(t, Remove(target))

	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	assert.True(t, Exists(target))
	assert.NoError(t, Remove(target))
	assert.False(t, Exists(target))
}
