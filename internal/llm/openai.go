package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	client       *openai.Client
	apiKey       string
	defaultModel string
}

func NewOpenAI(apiKey, baseURL, defaultModel string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(cfg),
		apiKey:       apiKey,
		defaultModel: defaultModel,
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if o.apiKey == "" {
		return "", fail(KindAuth, 0, errors.New("OPENAI_API_KEY is not set"))
	}
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	// temperature is omitempty on the wire; zero would fall back to the
	// API default of 1.
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", classifyOpenAI(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fail(KindMalformed, 0, errors.New("response has no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fail(KindMalformed, 0, errors.New("response content is empty"))
	}
	return text, nil
}

// Errors the client reports before sending anything.
var rejectedRequest = []error{
	openai.ErrChatCompletionInvalidModel,
	openai.ErrReasoningModelMaxTokensDeprecated,
	openai.ErrReasoningModelLimitationsOther,
	openai.ErrO1BetaLimitationsMessageTypes,
}

func classifyOpenAI(ctx context.Context, err error) *failure {
	for _, target := range rejectedRequest {
		if errors.Is(err, target) {
			return fail(KindMalformed, 0, err)
		}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusFailure(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusFailure(reqErr.HTTPStatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fail(KindMalformed, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fail(KindTimeout, 0, err)
	}
	return classify(ctx, err)
}

func statusFailure(status int, err error) *failure {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fail(KindAuth, status, err)
	case status == http.StatusTooManyRequests:
		return fail(KindRateLimit, status, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fail(KindTimeout, status, err)
	case status >= 500:
		return fail(KindUpstream, status, err)
	default:
		return fail(KindMalformed, status, fmt.Errorf("request rejected: %w", err))
	}
}
