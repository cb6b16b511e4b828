// Package inputs reads the local files an agent's prompt is composed from.
//
// Each input binds a placeholder name to a path or glob. Relative patterns
// resolve against the registry's directory. Matching files are read in
// name order and joined; a pattern that matches nothing yields an empty
// value.
package inputs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/stegverse/stegagents/pkg/cerr"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Spec declares one input of an agent.
type Spec struct {
	Name    string
	Pattern string
	// MaxChars truncates the value to this many characters; 0 keeps all.
	MaxChars int
}

// Validate checks a spec without touching the filesystem.
func Validate(s Spec) error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("input name %q is not a valid placeholder name", s.Name)
	}
	if strings.TrimSpace(s.Pattern) == "" {
		return fmt.Errorf("input %q has no path", s.Name)
	}
	if _, err := filepath.Match(s.Pattern, ""); err != nil {
		return fmt.Errorf("input %q: bad pattern %q: %w", s.Name, s.Pattern, err)
	}
	if s.MaxChars < 0 {
		return fmt.Errorf("input %q: max_chars cannot be negative", s.Name)
	}
	return nil
}

// Error reports an input that matched but could not be read.
type Error struct {
	Name string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("read input %q from %s: %v", e.Name, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Code() cerr.Code {
	return cerr.FailedPrecondition
}

// Loaded is the outcome of reading an agent's inputs.
type Loaded struct {
	// Values maps input names to their (possibly truncated) contents.
	Values map[string]string
	// Files lists the files read, relative to the base directory when possible.
	Files []string
	// Empty lists inputs whose pattern matched no file.
	Empty []string
	// Truncated lists inputs cut down to MaxChars.
	Truncated []string
}

type Reader struct {
	baseDir string
}

func NewReader(baseDir string) *Reader {
	return &Reader{baseDir: baseDir}
}

// Read resolves and reads specs.
func (r *Reader) Read(ctx context.Context, specs []Spec) (*Loaded, error) {
	loaded := &Loaded{Values: make(map[string]string, len(specs))}
	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pattern := s.Pattern
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(r.baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, &Error{Name: s.Name, Path: s.Pattern, Err: err}
		}
		sort.Strings(matches)

		var parts []string
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, &Error{Name: s.Name, Path: m, Err: err}
			}
			if info.IsDir() {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, &Error{Name: s.Name, Path: m, Err: err}
			}
			parts = append(parts, strings.TrimRight(string(data), "\n"))
			loaded.Files = append(loaded.Files, r.rel(m))
		}
		if len(parts) == 0 {
			loaded.Empty = append(loaded.Empty, s.Name)
		}

		value := strings.Join(parts, "\n")
		if cut, ok := truncate(value, s.MaxChars); ok {
			value = cut
			loaded.Truncated = append(loaded.Truncated, s.Name)
		}
		loaded.Values[s.Name] = value
	}
	return loaded, nil
}

func (r *Reader) rel(path string) string {
	if rel, err := filepath.Rel(r.baseDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) (string, bool) {
	if n <= 0 || len(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
