package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects how generated text is stored.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
)

// ParseFormat maps a registry value to a Format. Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatJSON, FormatJSONL:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (want markdown, json or jsonl)", s)
}

// Extension is the file suffix of artifacts in this format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatJSONL:
		return ".jsonl"
	}
	return ".md"
}

var extensions = []string{".md", ".json", ".jsonl"}

// envelope wraps a reply that did not parse as a JSON document.
type envelope struct {
	GeneratedAt string `json:"generated_at"`
	Agent       string `json:"agent"`
	Raw         string `json:"raw"`
}

// fragment wraps a reply line that did not parse as a JSON value.
type fragment struct {
	SourceID     string   `json:"source_id"`
	Agent        string   `json:"agent"`
	Summary      string   `json:"summary"`
	Tags         []string `json:"tags"`
	EvidenceType string   `json:"evidence_type"`
	Confidence   string   `json:"confidence"`
}

// render turns generated text into artifact content for f. Replies that do
// not parse are wrapped rather than rejected.
func render(f Format, rec RunRecord) (string, error) {
	switch f {
	case FormatJSON:
		return renderJSON(rec)
	case FormatJSONL:
		return renderJSONL(rec)
	}
	content := rec.GeneratedText
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content, nil
}

func renderJSON(rec RunRecord) (string, error) {
	body := stripFence(rec.GeneratedText)
	var buf bytes.Buffer
	if json.Valid([]byte(body)) {
		if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
			return "", err
		}
		buf.WriteByte('\n')
		return buf.String(), nil
	}
	data, err := json.MarshalIndent(envelope{
		GeneratedAt: rec.Timestamp.UTC().Format(time.RFC3339),
		Agent:       rec.AgentName,
		Raw:         rec.GeneratedText,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func renderJSONL(rec RunRecord) (string, error) {
	var buf bytes.Buffer
	for _, line := range strings.Split(stripFence(rec.GeneratedText), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if json.Valid([]byte(line)) {
			if err := json.Compact(&buf, []byte(line)); err != nil {
				return "", err
			}
			buf.WriteByte('\n')
			continue
		}
		data, err := json.Marshal(fragment{
			SourceID:     "fallback::" + rec.AgentName,
			Agent:        rec.AgentName,
			Summary:      line,
			Tags:         []string{"fallback-parse"},
			EvidenceType: "other",
			Confidence:   "low",
		})
		if err != nil {
			return "", err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// stripFence removes a surrounding ``` block, with or without a language tag.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	t = strings.TrimSuffix(t, "```")
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return strings.TrimSpace(strings.TrimPrefix(t, "```"))
	}
	return strings.TrimSpace(t[nl+1:])
}
