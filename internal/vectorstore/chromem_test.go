package vectorstore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

func newPersistentStore(t *testing.T, dir string) *vectorstore.Store {
	t.Helper()
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	store := vectorstore.NewStore(backend, zap.NewNop())
	require.NoError(t, store.Restore(context.Background()))
	return store
}

func generationDirs(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "hc_") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestChromemBackend_RestoreCommittedPartitions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newPersistentStore(t, dir)
	require.NoError(t, store.Replace(ctx, hierarchy.CompanyPartition("c1"), companyDocs(t, "c1")))
	require.NoError(t, store.Replace(ctx, hierarchy.GeneralPartition, []vectorstore.Document{
		makeDoc(t, "", "", "", "general/overview.md", 0, "company overview vacation"),
	}))
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))

	reopened := newPersistentStore(t, dir)
	defer reopened.Close()

	assert.ElementsMatch(t,
		[]hierarchy.Partition{hierarchy.GeneralPartition, hierarchy.CompanyPartition("c1")},
		reopened.Partitions())

	scope := hierarchy.Scope{Company: "c1", Department: "d1", Employee: "e1"}
	assert.Equal(t, []string{"c1/d1/e1/notes.md"}, sources(search(t, reopened, scope, hierarchy.LevelEmployee, "notes", 3)))
	assert.Equal(t, []string{"general/overview.md"}, sources(search(t, reopened, scope, hierarchy.LevelGeneral, "overview", 3)))

	results := search(t, reopened, scope, hierarchy.LevelCompany, "vacation", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "vacation policy for c1", results[0].Content)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, "c1", results[0].Metadata.HierarchyKey())
}

func TestChromemBackend_ReplaceRemovesSupersededGeneration(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := newPersistentStore(t, dir)
	c1 := hierarchy.CompanyPartition("c1")

	require.NoError(t, store.Replace(ctx, c1, companyDocs(t, "c1")))
	first := generationDirs(t, dir)
	require.Len(t, first, 1)

	require.NoError(t, store.Replace(ctx, c1, companyDocs(t, "c1")))
	second := generationDirs(t, dir)
	require.Len(t, second, 1)
	assert.NotEqual(t, first, second)
}

func TestChromemBackend_RestoreRemovesUncommittedGenerations(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newPersistentStore(t, dir)
	require.NoError(t, store.Replace(ctx, hierarchy.CompanyPartition("c1"), companyDocs(t, "c1")))
	committed := generationDirs(t, dir)

	// A build that crashed before commit leaves its directory behind.
	stale := filepath.Join(dir, hierarchy.CompanyPartition("c1").Name()+"_gdeadbeef")
	require.NoError(t, os.MkdirAll(stale, 0o750))

	newPersistentStore(t, dir)
	assert.NoDirExists(t, stale)
	assert.Equal(t, committed, generationDirs(t, dir))
}

func TestChromemBackend_RestoreEmptyDirectory(t *testing.T) {
	store := newPersistentStore(t, t.TempDir())
	assert.Empty(t, store.Partitions())
}

func TestChromemBackend_RejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{"version":99}`), 0o600))

	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	err = vectorstore.NewStore(backend, nil).Restore(context.Background())
	require.ErrorIs(t, err, vectorstore.ErrBackendUnavailable)
}

func TestNewBackend(t *testing.T) {
	b, err := vectorstore.NewBackend(vectorstore.Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.ChromemBackend{}, b)

	_, err = vectorstore.NewBackend(vectorstore.Config{Provider: "pinecone"}, nil)
	require.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
