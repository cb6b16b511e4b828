package output

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between the two newest artifacts in dir.
func (w *Writer) Diff(ctx context.Context, dir string) (string, error) {
	artifacts, err := w.List(ctx, dir)
	if err != nil {
		return "", err
	}
	if len(artifacts) < 2 {
		return "", ErrNotEnoughArtifacts
	}
	prev, latest := artifacts[len(artifacts)-2], artifacts[len(artifacts)-1]

	a, err := w.Read(ctx, prev)
	if err != nil {
		return "", err
	}
	b, err := w.Read(ctx, latest)
	if err != nil {
		return "", err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: prev.Path,
		ToFile:   latest.Path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff %s and %s: %w", prev.Path, latest.Path, err)
	}
	return diff, nil
}
