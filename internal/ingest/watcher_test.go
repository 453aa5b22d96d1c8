package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) reindex(_ context.Context, company string) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, company)
	return &Report{}, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startWatcher(t *testing.T, root string) *recorder {
	t.Helper()
	p, err := NewPipeline(Config{Watch: WatchConfig{Debounce: 50 * time.Millisecond}}, newStore(t), testEmbedder)
	require.NoError(t, err)
	w, err := NewWatcher(p, root, zap.NewNop())
	require.NoError(t, err)
	rec := &recorder{}
	w.reindex = rec.reindex

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Give Run time to register the tree.
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_CompanyChangeReindexesCompany(t *testing.T) {
	root := sampleCorpus(t)
	rec := startWatcher(t, root)

	for i := 0; i < 3; i++ {
		writeCorpus(t, root, map[string]string{"acme/engineering/oncall.md": "rotation changed"})
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"acme"}, rec.snapshot(), "writes are debounced into one reindex")
}

func TestWatcher_GeneralChangeRebuilds(t *testing.T) {
	root := sampleCorpus(t)
	rec := startWatcher(t, root)

	writeCorpus(t, root, map[string]string{"general/benefits.md": "new benefit"})

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, rebuildKey, rec.snapshot()[0])
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := sampleCorpus(t)
	rec := startWatcher(t, root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "initech", "sales"), 0o750))
	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	before := len(rec.snapshot())
	writeCorpus(t, root, map[string]string{"initech/sales/pipeline.md": "quarterly targets"})
	require.Eventually(t, func() bool { return len(rec.snapshot()) > before }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "initech", rec.snapshot()[len(rec.snapshot())-1])
}

func TestWatcher_KeyFor(t *testing.T) {
	root := sampleCorpus(t)
	w := &Watcher{root: root, general: []string{"general"}}

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{filepath.Join(root, "acme", "handbook.md"), "acme", true},
		{filepath.Join(root, "acme", "engineering", "alice", "notes.txt"), "acme", true},
		{filepath.Join(root, "general", "holidays.md"), rebuildKey, true},
		{filepath.Join(root, "globex"), "globex", true},
		{filepath.Join(root, "README.md"), "", false},
		{filepath.Join(filepath.Dir(root), "elsewhere.md"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := w.keyFor(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
