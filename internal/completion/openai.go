package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

// resultSchema is the JSON schema sent with every request so the service
// returns the structured turn result instead of prose.
var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"state": map[string]any{
			"type": "string",
			"enum": []string{"idle", "awaiting_clarification", "awaiting_feedback", "finalized"},
		},
		"plan": map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				"schedule": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"time":             map[string]any{"type": "string"},
							"task":             map[string]any{"type": "string"},
							"duration_minutes": map[string]any{"type": "integer"},
							"priority":         map[string]any{"type": "string"},
						},
						"required": []string{"time", "task"},
					},
				},
				"priorities": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"notes":      map[string]any{"type": "string"},
			},
			"required": []string{"schedule", "priorities", "notes"},
		},
		"questions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"state", "questions"},
}

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	// Timeout bounds each individual attempt; retries live above this
	// client in the RetryPolicy.
	Timeout time.Duration
}

// OpenAIClient implements Client against any OpenAI-compatible chat
// completions endpoint, using a JSON-schema response format for structured
// output.
type OpenAIClient struct {
	client  openai.Client
	model   string
	temp    float64
	timeout time.Duration
}

// NewOpenAIClient builds a client from config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion service API key is not configured (set OPENAI_API_KEY)")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   model,
		temp:    cfg.Temperature,
		timeout: cfg.Timeout,
	}, nil
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, messages []types.WireMessage) (*types.StructuredResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: buildMessages(messages),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "planning_turn",
					Description: openai.String("Structured result of one planning turn"),
					Schema:      resultSchema,
					Strict:      openai.Bool(false),
				},
			},
		},
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("no choices in completion response")}
	}

	return DecodeResult([]byte(resp.Choices[0].Message.Content))
}

// buildMessages converts wire messages to OpenAI chat params.
func buildMessages(messages []types.WireMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
