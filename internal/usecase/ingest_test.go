package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"studyrag/internal/adapter/fs"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

type recordingProgress struct {
	total int
	done  []string
}

func (p *recordingProgress) Start(total int)     { p.total = total }
func (p *recordingProgress) Done(relPath string) { p.done = append(p.done, relPath) }

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestIngest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "intro.md", []byte("# Cells\nCells are the unit of life."))
	writeFile(t, root, "unit1/ch1.txt", []byte("Mitochondria produce ATP."))
	writeFile(t, root, "unit1/blob.txt", []byte{0x00, 0xff, 0x10})
	writeFile(t, root, "image.png", []byte("not matched"))
	writeFile(t, root, ".git/notes.txt", []byte("excluded"))

	f := newFixture(t, 200, 20)
	walker := fs.NewWalker(
		[]string{"**/*.txt", "**/*.md"},
		[]string{"**/.git/**", ".git/**"},
	)
	ing := NewIngester(walker, fs.TextReader{}, f.documents, nil)

	progress := &recordingProgress{}
	res, err := ing.Ingest(context.Background(), root, progress)
	require.NoError(t, err)

	assert.Equal(t, 3, progress.total)
	assert.Len(t, progress.done, 3)
	assert.Equal(t, []string{"unit1/blob.txt"}, res.Skipped)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Uploaded, 2)

	infos, err := f.service.ListDocuments()
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Filename)
	}
	assert.Equal(t, []string{"intro.md", "unit1/ch1.txt"}, names)
}

func TestIngest_MissingRoot(t *testing.T) {
	f := newFixture(t, 200, 20)
	ing := NewIngester(fs.NewWalker(nil, nil), fs.TextReader{}, f.documents, nil)

	_, err := ing.Ingest(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestIngester_Sync(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("alpha v2"))
	writeFile(t, root, "bin.txt", []byte{0x00, 0x01})

	f := newFixture(t, 200, 20)
	_, err := f.documents.Upload(context.Background(), "old.txt", "stale")
	require.NoError(t, err)
	ing := NewIngester(fs.NewWalker(nil, nil), fs.TextReader{}, f.documents, nil)

	res, err := ing.Sync(context.Background(), []port.FileChange{
		{Path: filepath.Join(root, "a.txt"), RelPath: "a.txt"},
		{Path: filepath.Join(root, "bin.txt"), RelPath: "bin.txt"},
		{Path: filepath.Join(root, "old.txt"), RelPath: "old.txt", Removed: true},
		{Path: filepath.Join(root, "never.txt"), RelPath: "never.txt", Removed: true},
		{Path: filepath.Join(root, "gone.txt"), RelPath: "gone.txt"},
	})
	require.NoError(t, err)

	require.Len(t, res.Uploaded, 1)
	assert.Equal(t, "a.txt", res.Uploaded[0].Filename)
	assert.Equal(t, []string{"old.txt"}, res.Removed)
	assert.Equal(t, []string{"bin.txt"}, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "gone.txt")

	_, err = f.documents.Get("old.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// batchWatcher delivers its batches in order and then returns.
type batchWatcher struct {
	batches [][]port.FileChange
}

func (w batchWatcher) Watch(_ context.Context, _ string, onChange func([]port.FileChange)) error {
	for _, b := range w.batches {
		onChange(b)
	}
	return nil
}

func TestService_WatchIngest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.md", []byte("photosynthesis"))

	f := newFixture(t, 200, 20)
	watcher := batchWatcher{batches: [][]port.FileChange{
		{{Path: filepath.Join(root, "notes.md"), RelPath: "notes.md"}},
		{{Path: filepath.Join(root, "notes.md"), RelPath: "notes.md", Removed: true}},
	}}

	var reports []*IngestResult
	err := f.service.WatchIngest(context.Background(), root, watcher, func(r *IngestResult) {
		reports = append(reports, r)
	})
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Len(t, reports[0].Uploaded, 1)
	assert.Equal(t, []string{"notes.md"}, reports[1].Removed)

	infos, err := f.service.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

// cancelingReader cancels the watch context as soon as a file is read.
type cancelingReader struct {
	fs.TextReader
	cancel context.CancelFunc
}

func (r cancelingReader) ReadText(path string) (string, error) {
	r.cancel()
	return r.TextReader.ReadText(path)
}

func TestIngester_WatchReportsInterruptedBatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", []byte("mitosis"))
	writeFile(t, root, "c.txt", []byte("meiosis"))

	f := newFixture(t, 200, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.documents.Upload(ctx, "old.txt", "osmosis")
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	ing := NewIngester(fs.NewWalker(nil, nil), cancelingReader{cancel: cancel}, f.documents, zap.New(core))
	watcher := batchWatcher{batches: [][]port.FileChange{{
		{RelPath: "old.txt", Removed: true},
		{Path: filepath.Join(root, "b.txt"), RelPath: "b.txt"},
		{Path: filepath.Join(root, "c.txt"), RelPath: "c.txt"},
	}}}

	var reports []*IngestResult
	require.NoError(t, ing.Watch(ctx, root, watcher, func(r *IngestResult) {
		reports = append(reports, r)
	}))

	require.Len(t, reports, 1)
	assert.Equal(t, []string{"old.txt"}, reports[0].Removed)
	require.Equal(t, 1, logs.FilterMessage("sync stopped before the batch finished").Len())
	entry := logs.All()[0]
	assert.Equal(t, int64(3), entry.ContextMap()["changes"])
}
