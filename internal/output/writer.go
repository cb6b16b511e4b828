// Package output persists generated text as artifacts laid out as
// <dir>/<timestamp>.<ext> under the storage root. Markdown is the default;
// json and jsonl agents get their replies normalised before writing.
package output

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/stegverse/stegagents/pkg/storage"
)

// TimestampLayout encodes artifact timestamps: UTC, second resolution,
// lexically sortable and safe in file names.
const TimestampLayout = "2006-01-02T150405Z"

// RunRecord is the result of one agent run within one invocation.
type RunRecord struct {
	RunID     string
	AgentName string
	// Dir is the agent's output directory, usually its name.
	Dir           string
	Timestamp     time.Time
	GeneratedText string
	// Format is the artifact format; empty means markdown.
	Format Format
}

func (rec RunRecord) path() string {
	dir := rec.Dir
	if dir == "" {
		dir = rec.AgentName
	}
	return Path(dir, rec.Timestamp, rec.Format)
}

// Path returns the artifact path for dir at ts.
func Path(dir string, ts time.Time, f Format) string {
	return path.Join(dir, ts.UTC().Format(TimestampLayout)+f.Extension())
}

type Writer struct {
	store storage.Storage
}

func NewWriter(store storage.Storage) *Writer {
	return &Writer{store: store}
}

// Write persists rec and returns the artifact location. An existing artifact
// at the same path is never replaced.
func (w *Writer) Write(ctx context.Context, rec RunRecord) (string, error) {
	p := rec.path()
	content, err := render(rec.Format, rec)
	if err != nil {
		return "", &WriteError{Agent: rec.AgentName, Path: w.store.Location(p), Err: err}
	}
	if err := w.store.Create(ctx, p, []byte(content)); err != nil {
		return "", &WriteError{Agent: rec.AgentName, Path: w.store.Location(p), Err: err}
	}
	return w.store.Location(p), nil
}

// Check reports whether rec can still be written. It returns a *WriteError
// wrapping storage.ErrAlreadyExists when the artifact is already there.
func (w *Writer) Check(ctx context.Context, rec RunRecord) error {
	p := rec.path()
	exists, err := w.store.Exists(ctx, p)
	if err != nil {
		return &WriteError{Agent: rec.AgentName, Path: w.store.Location(p), Err: err}
	}
	if exists {
		return &WriteError{Agent: rec.AgentName, Path: w.store.Location(p), Err: storage.ErrAlreadyExists}
	}
	return nil
}

// Artifact is a stored output file.
type Artifact struct {
	Path      string
	Location  string
	Timestamp time.Time
}

// List returns the artifacts under dir, oldest first. Files whose names are
// not artifact timestamps are ignored.
func (w *Writer) List(ctx context.Context, dir string) ([]Artifact, error) {
	paths, err := w.store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts in %s: %w", dir, err)
	}
	artifacts := make([]Artifact, 0, len(paths))
	for _, p := range paths {
		name, ok := cutExtension(path.Base(p))
		if !ok {
			continue
		}
		ts, err := time.Parse(TimestampLayout, name)
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{Path: p, Location: w.store.Location(p), Timestamp: ts})
	}
	return artifacts, nil
}

func cutExtension(base string) (string, bool) {
	for _, ext := range extensions {
		if name, ok := strings.CutSuffix(base, ext); ok {
			return name, true
		}
	}
	return "", false
}

// ErrNotEnoughArtifacts is returned by Diff when fewer than two artifacts exist.
var ErrNotEnoughArtifacts = errors.New("need at least two artifacts to diff")

// Read returns the content of an artifact.
func (w *Writer) Read(ctx context.Context, a Artifact) (string, error) {
	data, err := w.store.Read(ctx, a.Path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", a.Location, err)
	}
	return string(data), nil
}
