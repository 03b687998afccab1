package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/apex/internal/types"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func entryFor(t *testing.T, tr *Tracker, endpoint string, td types.TypeDescriptor) Entry {
	t.Helper()
	hash, err := tr.Hash(endpoint)
	require.NoError(t, err)
	return Entry{Hash: hash, Output: "client/apex/" + filepath.Base(endpoint), Name: "Fetch", Types: td}
}

func TestOpenMissingStore(t *testing.T) {
	tr, err := Open(t.TempDir(), ".apex/cache", nil)
	require.NoError(t, err)
	assert.Empty(t, tr.Entries())
	assert.False(t, tr.Dirty())

	// Saving an untouched cache writes nothing
	require.NoError(t, tr.Save())
	_, err = os.Stat(tr.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestOpenCorruptStore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".apex/cache/"+FileName, "entries: [this is: not a map")

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	assert.Empty(t, tr.Entries())
	assert.True(t, tr.Dirty())
}

func TestDiffRecordAndReopen(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "server/api/a.get.go", "package api // a\n")
	writeFile(t, root, "server/api/b.get.go", "package api // b\n")

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)

	changed, err := tr.Diff([]string{"server/api/a.get.go", "server/api/b.get.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"server/api/a.get.go", "server/api/b.get.go"}, changed)

	td := types.TypeDescriptor{InputType: "struct{}", InputSource: "server/api/a.get.go", OutputType: "int", OutputSource: "server/api/a.get.go"}
	tr.Record(a, entryFor(t, tr, a, td))
	require.NoError(t, tr.Save())

	reopened, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	e, ok := reopened.Get("server/api/a.get.go")
	require.True(t, ok)
	assert.Equal(t, td, e.Types)

	changed, err = reopened.Diff([]string{"server/api/a.get.go", "server/api/b.get.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"server/api/b.get.go"}, changed)

	writeFile(t, root, "server/api/a.get.go", "package api // a, edited\n")
	changed, err = reopened.Diff([]string{"server/api/a.get.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"server/api/a.get.go"}, changed)
}

func TestRecordIdenticalEntryIsClean(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.get.go", "package x\n")

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	e := entryFor(t, tr, "x.get.go", types.TypeDescriptor{InputType: "int"})
	tr.Record("x.get.go", e)
	require.NoError(t, tr.Save())
	assert.False(t, tr.Dirty())

	tr.Record("x.get.go", e)
	assert.False(t, tr.Dirty())
}

func TestDependentsOfAndChangedSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "server/shared/types.go", "package shared // v1\n")
	writeFile(t, root, "server/shared/other.go", "package shared // other\n")
	for _, ep := range []string{"server/api/a.get.go", "server/api/b.post.go", "server/api/c.put.go"} {
		writeFile(t, root, ep, "package api\n")
	}

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	tr.Record("server/api/a.get.go", entryFor(t, tr, "server/api/a.get.go", types.TypeDescriptor{
		InputSource: "server/shared/types.go", OutputSource: "server/api/a.get.go",
	}))
	tr.Record("server/api/b.post.go", entryFor(t, tr, "server/api/b.post.go", types.TypeDescriptor{
		InputSource: "server/api/b.post.go", OutputSource: "server/api/b.post.go",
		References: []string{"server/shared/types.go", "server/shared/other.go"},
	}))
	tr.Record("server/api/c.put.go", entryFor(t, tr, "server/api/c.put.go", types.TypeDescriptor{
		InputSource: "server/api/c.put.go", OutputSource: "server/shared/other.go",
	}))

	assert.Equal(t, []string{"server/api/a.get.go", "server/api/b.post.go"}, tr.DependentsOf("server/shared/types.go"))
	assert.Equal(t, []string{"server/api/b.post.go", "server/api/c.put.go"}, tr.DependentsOf(filepath.Join(root, "server/shared/other.go")))
	assert.Empty(t, tr.DependentsOf("server/api/a.get.go"))

	// Nothing recorded yet: every source counts as changed
	assert.Equal(t, []string{"server/shared/other.go", "server/shared/types.go"}, tr.ChangedSources())

	tr.RecordSources()
	assert.Empty(t, tr.ChangedSources())

	writeFile(t, root, "server/shared/types.go", "package shared // v2 with more bytes\n")
	assert.Equal(t, []string{"server/shared/types.go"}, tr.ChangedSources())

	require.NoError(t, os.Remove(filepath.Join(root, "server/shared/other.go")))
	assert.Equal(t, []string{"server/shared/other.go", "server/shared/types.go"}, tr.ChangedSources())
}

func TestPrune(t *testing.T) {
	root := t.TempDir()
	for _, ep := range []string{"a.get.go", "b.get.go", "c.get.go"} {
		writeFile(t, root, ep, "package api\n")
	}

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	for _, ep := range []string{"a.get.go", "b.get.go", "c.get.go"} {
		tr.Record(ep, entryFor(t, tr, ep, types.TypeDescriptor{}))
	}

	var removedOutputs []string
	removed, err := tr.Prune([]string{"b.get.go"}, func(output string) error {
		removedOutputs = append(removedOutputs, output)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.get.go", "c.get.go"}, removed)
	assert.Equal(t, []string{"client/apex/a.get.go", "client/apex/c.get.go"}, removedOutputs)
	assert.Len(t, tr.Entries(), 1)

	_, ok := tr.Get("b.get.go")
	assert.True(t, ok)
}

func TestPruneKeepsEntryWhenRemovalFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.get.go", "package api\n")

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	tr.Record("a.get.go", entryFor(t, tr, "a.get.go", types.TypeDescriptor{}))

	removed, err := tr.Prune(nil, func(string) error { return os.ErrPermission })
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Empty(t, removed)

	_, ok := tr.Get("a.get.go")
	assert.True(t, ok)
}

func TestHashProviderMemo(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "f.go", "package f\n")

	hp := NewHashProvider(2)
	h1, err := hp.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("package f\n")), h1)

	h2, err := hp.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	writeFile(t, root, "f.go", "package f // changed\n")
	h3, err := hp.Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = hp.Hash(filepath.Join(root, "missing.go"))
	assert.Error(t, err)
}

func TestInvalidateAndSettings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.get.go", "package x\n")

	tr, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	tr.Record("x.get.go", entryFor(t, tr, "x.get.go", types.TypeDescriptor{InputType: "int"}))
	tr.SetSettings(42)
	require.NoError(t, tr.Save())

	changed, err := tr.Diff([]string{"x.get.go"})
	require.NoError(t, err)
	assert.Empty(t, changed)

	tr.Invalidate("x.get.go")
	assert.True(t, tr.Dirty())
	changed, err = tr.Diff([]string{"x.get.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x.get.go"}, changed)

	e, ok := tr.Get("x.get.go")
	require.True(t, ok)
	assert.Equal(t, "int", e.Types.InputType)

	require.NoError(t, tr.Save())
	reopened, err := Open(root, ".apex/cache", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), reopened.Settings())

	reopened.SetSettings(42)
	assert.False(t, reopened.Dirty())
}
