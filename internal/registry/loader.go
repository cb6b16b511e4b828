package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stegverse/stegagents/internal/hook"
	"github.com/stegverse/stegagents/internal/inputs"
	"github.com/stegverse/stegagents/internal/output"
	"github.com/stegverse/stegagents/internal/schedule"
)

const defaultTemperature = 0.7

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type document struct {
	Vars     map[string]string `yaml:"vars"`
	Defaults defaults          `yaml:"defaults"`
	Agents   []rawAgent        `yaml:"agents"`
}

type defaults struct {
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	Temperature     *float64 `yaml:"temperature"`
	MaxTokens       int      `yaml:"max_tokens"`
	TimestampFooter bool     `yaml:"timestamp_footer"`
}

type rawAgent struct {
	Name              *string             `yaml:"name"`
	Schedule          *string             `yaml:"schedule"`
	PromptTemplate    *string             `yaml:"prompt_template"`
	PromptTemplateAlt *string             `yaml:"promptTemplate"`
	OutputDir         string              `yaml:"output_dir"`
	OutputDirAlt      string              `yaml:"outputDir"`
	SystemPrompt      string              `yaml:"system_prompt"`
	Enabled           *bool               `yaml:"enabled"`
	Provider          string              `yaml:"provider"`
	Model             string              `yaml:"model"`
	Temperature       *float64            `yaml:"temperature"`
	MaxTokens         *int                `yaml:"max_tokens"`
	TimestampFooter   *bool               `yaml:"timestamp_footer"`
	Vars              map[string]string   `yaml:"vars"`
	Inputs            map[string]rawInput `yaml:"inputs"`
	Format            string              `yaml:"format"`
	Hooks             hooks               `yaml:"hooks"`
}

type hooks struct {
	After string `yaml:"after"`
}

// rawInput accepts either a bare path or {path, max_chars}.
type rawInput struct {
	Path     string
	MaxChars int
}

func (in *rawInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&in.Path)
	}
	var v struct {
		Path     string `yaml:"path"`
		MaxChars int    `yaml:"max_chars"`
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i < len(node.Content); i += 2 {
			switch k := node.Content[i].Value; k {
			case "path", "max_chars":
			default:
				return fmt.Errorf("line %d: field %s not found in input", node.Content[i].Line, k)
			}
		}
	}
	if err := node.Decode(&v); err != nil {
		return err
	}
	in.Path, in.MaxChars = v.Path, v.MaxChars
	return nil
}

// Load reads and validates the registry file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, documentError(path, "cannot read registry", err)
	}
	return Parse(data, path)
}

// Parse validates a registry document. It returns one AgentDefinition per
// entry in declared order, or a *ConfigError.
func Parse(data []byte, source string) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, documentError(source, "registry is empty", nil)
		}
		return nil, documentError(source, "malformed registry", err)
	}
	if len(doc.Agents) == 0 {
		return nil, documentError(source, "no agents defined", nil)
	}
	if doc.Defaults.Provider != "" && !knownProvider(doc.Defaults.Provider) {
		return nil, &ConfigError{Source: source, Index: -1, Field: "defaults.provider", Reason: fmt.Sprintf("unknown provider %q", doc.Defaults.Provider)}
	}

	reg := &Registry{
		Source: source,
		Vars:   doc.Vars,
		Agents: make([]AgentDefinition, 0, len(doc.Agents)),
	}
	seen := make(map[string]int, len(doc.Agents))
	dirs := make(map[string]int, len(doc.Agents))
	for i, raw := range doc.Agents {
		def, err := raw.definition(source, i, doc.Defaults)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.Name]; ok {
			return nil, entryError(source, i, "name", fmt.Sprintf("duplicate agent name %q (first declared at agents[%d])", def.Name, prev))
		}
		seen[def.Name] = i
		if prev, ok := dirs[def.Dir()]; ok {
			return nil, entryError(source, i, "output_dir", fmt.Sprintf("output directory %q already used by agents[%d]", def.Dir(), prev))
		}
		dirs[def.Dir()] = i
		reg.Agents = append(reg.Agents, def)
	}
	return reg, nil
}

func (raw rawAgent) definition(source string, i int, d defaults) (AgentDefinition, error) {
	if raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return AgentDefinition{}, entryError(source, i, "name", "name is required")
	}
	name := *raw.Name
	if !safeSegment.MatchString(name) {
		return AgentDefinition{}, entryError(source, i, "name", fmt.Sprintf("name %q must be a filename-safe segment", name))
	}

	// The key must be present; an explicitly empty value means "always".
	if raw.Schedule == nil {
		return AgentDefinition{}, entryError(source, i, "schedule", "schedule is required")
	}
	if _, err := schedule.Parse(*raw.Schedule); err != nil {
		ce := entryError(source, i, "schedule", "invalid schedule")
		ce.Err = err
		return AgentDefinition{}, ce
	}

	tmpl := raw.PromptTemplate
	if tmpl == nil {
		tmpl = raw.PromptTemplateAlt
	}
	if tmpl == nil || strings.TrimSpace(*tmpl) == "" {
		return AgentDefinition{}, entryError(source, i, "prompt_template", "prompt_template is required")
	}

	outputDir := raw.OutputDir
	if outputDir == "" {
		outputDir = raw.OutputDirAlt
	}
	if outputDir != "" && !validOutputDir(outputDir) {
		return AgentDefinition{}, entryError(source, i, "output_dir", fmt.Sprintf("output_dir %q must be relative filename-safe segments", outputDir))
	}

	provider := raw.Provider
	if provider == "" {
		provider = d.Provider
	}
	if provider == "" {
		provider = ProviderOpenAI
	}
	if !knownProvider(provider) {
		return AgentDefinition{}, entryError(source, i, "provider", fmt.Sprintf("unknown provider %q", provider))
	}

	temperature := defaultTemperature
	if d.Temperature != nil {
		temperature = *d.Temperature
	}
	if raw.Temperature != nil {
		temperature = *raw.Temperature
	}
	if temperature < 0 || temperature > 2 {
		return AgentDefinition{}, entryError(source, i, "temperature", "temperature must be within [0, 2]")
	}

	maxTokens := d.MaxTokens
	if raw.MaxTokens != nil {
		maxTokens = *raw.MaxTokens
	}
	if maxTokens < 0 {
		return AgentDefinition{}, entryError(source, i, "max_tokens", "max_tokens cannot be negative")
	}

	if raw.Hooks.After != "" {
		if err := hook.Validate(raw.Hooks.After); err != nil {
			ce := entryError(source, i, "hooks.after", "invalid shell snippet")
			ce.Err = err
			return AgentDefinition{}, ce
		}
	}

	names := make([]string, 0, len(raw.Inputs))
	for name := range raw.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]inputs.Spec, 0, len(names))
	for _, name := range names {
		in := raw.Inputs[name]
		spec := inputs.Spec{Name: name, Pattern: in.Path, MaxChars: in.MaxChars}
		if err := inputs.Validate(spec); err != nil {
			ce := entryError(source, i, "inputs."+name, "invalid input")
			ce.Err = err
			return AgentDefinition{}, ce
		}
		specs = append(specs, spec)
	}

	format, err := output.ParseFormat(raw.Format)
	if err != nil {
		ce := entryError(source, i, "format", "invalid format")
		ce.Err = err
		return AgentDefinition{}, ce
	}

	enabled := true
	if raw.Enabled != nil {
		enabled = *raw.Enabled
	}
	footer := d.TimestampFooter
	if raw.TimestampFooter != nil {
		footer = *raw.TimestampFooter
	}
	model := raw.Model
	if model == "" {
		model = d.Model
	}

	return AgentDefinition{
		Name:            name,
		Schedule:        strings.TrimSpace(*raw.Schedule),
		PromptTemplate:  *tmpl,
		OutputDir:       outputDir,
		SystemPrompt:    raw.SystemPrompt,
		Enabled:         enabled,
		Provider:        provider,
		Model:           model,
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		TimestampFooter: footer,
		Vars:            raw.Vars,
		Inputs:          specs,
		Format:          format,
		AfterHook:       raw.Hooks.After,
	}, nil
}

func validOutputDir(dir string) bool {
	for _, seg := range strings.Split(dir, "/") {
		if !safeSegment.MatchString(seg) || seg == ".." {
			return false
		}
	}
	return true
}

func knownProvider(p string) bool {
	return p == ProviderOpenAI || p == ProviderClaudeCode
}
