package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		tmpl        string
		layers      []map[string]string
		want        string
		wantMissing []string
	}{
		{
			name:   "single placeholder",
			tmpl:   "Hello {topic}",
			layers: []map[string]string{{"topic": "steg"}},
			want:   "Hello steg",
		},
		{
			name: "first layer wins",
			tmpl: "{org}/{topic}",
			layers: []map[string]string{
				{"topic": "cli"},
				{"topic": "agent", "org": "StegVerse"},
			},
			want: "StegVerse/cli",
		},
		{
			name:        "unknown placeholder kept verbatim",
			tmpl:        "Write about {topic} for {audience} and {audience}",
			layers:      []map[string]string{{"topic": "x"}},
			want:        "Write about x for {audience} and {audience}",
			wantMissing: []string{"audience"},
		},
		{
			name: "braces that are not placeholders",
			tmpl: `Return JSON like {"a": 1} or { spaced }`,
			want: `Return JSON like {"a": 1} or { spaced }`,
		},
		{
			name: "no layers",
			tmpl: "plain text",
			want: "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.tmpl, tt.layers...)
			assert.Equal(t, tt.want, got.Text)
			if tt.wantMissing == nil {
				assert.Empty(t, got.Missing)
			} else {
				assert.Equal(t, tt.wantMissing, got.Missing)
			}
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	vars := map[string]string{"a": "1", "b": "2"}
	first := Render("{a}{b}{c}", vars)
	second := Render("{a}{b}{c}", vars)
	assert.Equal(t, first, second)
}

func TestBuiltins(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 5, 7, 0, time.FixedZone("JST", 9*3600))
	got := Builtins("X", at)
	assert.Equal(t, map[string]string{
		"agent":     "X",
		"date":      "2024-01-01",
		"timestamp": "2024-01-01T000507Z",
		"now":       "2024-01-01T00:05:07Z",
	}, got)
}

func TestWithFooter(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := WithFooter("Hello steg\n", at)
	assert.Equal(t, "Hello steg\n\nTimestamp (UTC): 2024-01-01T00:00:00Z\nMake sure your output stands on its own without needing this context.\n", got)
}
