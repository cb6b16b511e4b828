package registry

import (
	"github.com/stegverse/stegagents/internal/inputs"
	"github.com/stegverse/stegagents/internal/output"
)

// Providers understood by the entity runner.
const (
	ProviderOpenAI     = "openai"
	ProviderClaudeCode = "claude-code"
)

// AgentDefinition is one entry of the registry. Values are immutable once
// loaded; the registry is read fresh on every invocation.
type AgentDefinition struct {
	Name            string
	Schedule        string
	PromptTemplate  string
	OutputDir       string
	SystemPrompt    string
	Enabled         bool
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	TimestampFooter bool
	Vars            map[string]string
	// Inputs are read before each run and bound as placeholders, sorted by name.
	Inputs    []inputs.Spec
	Format    output.Format
	AfterHook string
}

// Dir is the path segment artifacts of this agent are written under.
func (d AgentDefinition) Dir() string {
	if d.OutputDir != "" {
		return d.OutputDir
	}
	return d.Name
}

// Registry is the parsed registry document.
type Registry struct {
	Source string
	Vars   map[string]string
	Agents []AgentDefinition
}

// Find returns the definition named name.
func (r *Registry) Find(name string) (AgentDefinition, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentDefinition{}, false
}
