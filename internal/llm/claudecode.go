package llm

import (
	"context"
	"errors"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeCode generates text through the local Claude Code CLI.
type ClaudeCode struct {
	workDir string
}

func NewClaudeCode(workDir string) *ClaudeCode {
	return &ClaudeCode{workDir: workDir}
}

func (c *ClaudeCode) Generate(ctx context.Context, req Request) (string, error) {
	maxTurns := 1
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   req.SystemPrompt,
		Cwd:            c.workDir,
		MaxTurns:       &maxTurns,
		PermissionMode: claudeagent.PermissionModeDefault,
	}

	result, err := claudeagent.RunQuerySync(ctx, req.Prompt, opts)
	if err != nil {
		return "", classify(ctx, err)
	}
	if result.Result == nil {
		return "", fail(KindMalformed, 0, errors.New("claude returned no result"))
	}
	if result.Result.IsError {
		return "", fail(KindUpstream, 0, errors.New(result.Result.Result))
	}
	text := strings.TrimSpace(result.Result.Result)
	if text == "" {
		return "", fail(KindMalformed, 0, errors.New("claude returned an empty result"))
	}
	return text, nil
}
