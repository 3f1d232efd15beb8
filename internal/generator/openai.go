package generator

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements Generator using the OpenAI Chat
// Completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a new OpenAI-backed generator.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildPersonaPrompt(req.Persona, req.MaxLength)},
	}
	history := req.History
	if len(history) > 20 {
		history = history[len(history)-20:]
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generator completion: %w", err)
	}

	var content string
	if len(resp.Choices) > 0 {
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if content == "" {
		return nil, fmt.Errorf("generator returned empty draft")
	}

	// The chat API reports no confidence; a finished completion is
	// treated as high confidence, a truncated one as lower.
	confidence := 0.9
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason != openai.FinishReasonStop {
		confidence = 0.6
	}

	return &Response{
		Content:    content,
		Confidence: confidence,
		Model:      resp.Model,
	}, nil
}

func buildPersonaPrompt(p Persona, maxLength int) string {
	var b strings.Builder

	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You are %s, a sales representative.", p.Name)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "\nKeep a %s tone.", p.Tone)
	}
	if maxLength > 0 {
		fmt.Fprintf(&b, "\nKeep the reply under %d characters.", maxLength)
	}
	b.WriteString("\nNever invent product capabilities, prices or commitments you are not certain about.")

	return b.String()
}
