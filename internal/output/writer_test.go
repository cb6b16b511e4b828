package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stegverse/stegagents/pkg/cerr"
	"github.com/stegverse/stegagents/pkg/storage"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "out")
	store, err := storage.NewLocalStorage(root)
	require.NoError(t, err)
	return NewWriter(store), root
}

func TestPath(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "X/2024-01-01T000000Z.md", Path("X", ts, ""))
	assert.Equal(t, "X/2024-01-01T000000Z.json", Path("X", ts, FormatJSON))
	assert.Equal(t, "X/2024-01-01T000000Z.jsonl", Path("X", ts, FormatJSONL))

	jst := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "social/X/2024-01-01T000000Z.md", Path("social/X", ts.In(jst), FormatMarkdown))
}

func TestWriter_Check(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()
	rec := RunRecord{AgentName: "X", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), GeneratedText: "t"}

	require.NoError(t, w.Check(ctx, rec))
	_, err := w.Write(ctx, rec)
	require.NoError(t, err)

	err = w.Check(ctx, rec)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	rec.Format = FormatJSON
	assert.NoError(t, w.Check(ctx, rec))
}

func TestWriter_Write(t *testing.T) {
	w, root := newTestWriter(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	loc, err := w.Write(context.Background(), RunRecord{
		RunID:         "01HZ",
		AgentName:     "X",
		Timestamp:     ts,
		GeneratedText: "generated for Hello steg",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "X", "2024-01-01T000000Z.md"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "generated for Hello steg\n", string(data))
}

func TestWriter_WriteUsesDir(t *testing.T) {
	w, root := newTestWriter(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	loc, err := w.Write(context.Background(), RunRecord{AgentName: "X", Dir: "books", Timestamp: ts, GeneratedText: "text\n"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "books", "2024-01-01T000000Z.md"), loc)
}

func TestWriter_WriteNeverOverwrites(t *testing.T) {
	w, root := newTestWriter(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := RunRecord{AgentName: "X", Timestamp: ts, GeneratedText: "first"}

	_, err := w.Write(context.Background(), rec)
	require.NoError(t, err)

	rec.GeneratedText = "second"
	_, err = w.Write(context.Background(), rec)
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "X", writeErr.Agent)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	assert.Equal(t, cerr.AlreadyExists, cerr.CodeOf(err))

	data, err := os.ReadFile(filepath.Join(root, "X", "2024-01-01T000000Z.md"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))
}

func TestWriter_WriteFailure(t *testing.T) {
	w, root := newTestWriter(t)
	require.NoError(t, os.MkdirAll(root, 0o755))
	// A regular file where the agent directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(root, "X"), []byte("x"), 0o644))

	_, err := w.Write(context.Background(), RunRecord{AgentName: "X", Timestamp: time.Now(), GeneratedText: "t"})
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, cerr.Internal, cerr.CodeOf(err))
}

func TestWriter_ListAndDiff(t *testing.T) {
	w, root := newTestWriter(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := w.Diff(ctx, "X")
	assert.ErrorIs(t, err, ErrNotEnoughArtifacts)

	for i, text := range []string{"alpha\nbeta\n", "alpha\ngamma\n", "alpha\ngamma\ndelta\n"} {
		_, err := w.Write(ctx, RunRecord{AgentName: "X", Timestamp: base.Add(time.Duration(i) * time.Hour), GeneratedText: text})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "X", "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "X", "notes.json"), []byte("{}"), 0o644))

	artifacts, err := w.List(ctx, "X")
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
	assert.Equal(t, "X/2024-01-01T000000Z.md", artifacts[0].Path)
	assert.Equal(t, base.Add(2*time.Hour), artifacts[2].Timestamp)

	diff, err := w.Diff(ctx, "X")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- X/2024-01-01T010000Z.md")
	assert.Contains(t, diff, "+++ X/2024-01-01T020000Z.md")
	assert.Contains(t, diff, "+delta")
}
