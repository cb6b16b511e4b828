// Package prompt renders agent prompt templates.
//
// Templates use {key} placeholders. Values are looked up in the given layers
// in order; the first layer defining a key wins. Placeholders without a value
// are left untouched and reported as missing.
package prompt

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/stegverse/stegagents/internal/output"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Rendered is the outcome of rendering a template.
type Rendered struct {
	Text string
	// Missing lists placeholders that had no value, sorted and deduplicated.
	Missing []string
}

// Render substitutes placeholders in tmpl from layers.
func Render(tmpl string, layers ...map[string]string) Rendered {
	var missing []string
	text := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		for _, l := range layers {
			if v, ok := l[key]; ok {
				return v
			}
		}
		missing = append(missing, key)
		return m
	})
	slices.Sort(missing)
	return Rendered{Text: text, Missing: slices.Compact(missing)}
}

// Builtins returns the values every template may reference.
func Builtins(agent string, at time.Time) map[string]string {
	at = at.UTC()
	return map[string]string{
		"agent":     agent,
		"date":      at.Format(time.DateOnly),
		"timestamp": at.Format(output.TimestampLayout),
		"now":       at.Format(time.RFC3339),
	}
}

// WithFooter appends the timestamp footer and the stand-alone instruction
// sent by the scheduled runner when an agent asks for it.
func WithFooter(text string, at time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\nTimestamp (UTC): ")
	b.WriteString(at.UTC().Format(time.RFC3339))
	b.WriteString("\nMake sure your output stands on its own without needing this context.\n")
	return b.String()
}
