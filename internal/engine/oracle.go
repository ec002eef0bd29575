package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
)

const (
	oracleMaxRetries = 3
	oracleRetryDelay = 1 * time.Second
)

// OracleClient implements the oracle contract on an OpenAI-compatible
// chat API with native tool calling. It is stateless per call; the
// engine resends whatever context the oracle should see.
type OracleClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOracleClient creates an oracle client. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOracleClient(apiKey, baseURL, model string, temperature float64, maxTokens int) *OracleClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OracleClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: float32(temperature),
		maxTokens:   maxTokens,
	}
}

// Send performs one chat completion, retrying transient failures.
func (c *OracleClient) Send(ctx context.Context, messages []interfaces.Message, tools []interfaces.ToolSchema) (*interfaces.OracleResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       toOpenAITools(tools),
	}

	var lastErr error
	for attempt := 0; attempt < oracleMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(oracleRetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !isRetryableError(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices returned")
			continue
		}
		return fromOpenAIMessage(resp.Choices[0].Message), nil
	}

	return nil, fmt.Errorf("oracle call failed: %w", lastErr)
}

func toOpenAIMessages(messages []interfaces.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []interfaces.ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) *interfaces.OracleResponse {
	resp := &interfaces.OracleResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := make(map[string]interface{})
		// Malformed arguments degrade to an empty map; the tool handler
		// reports the missing fields back to the oracle.
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, interfaces.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return resp
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}
