package enhancement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You rewrite prompts for an architectural visualization model.
Fold the provided design context (palette, materials, style, geometry) into the
user's prompt so the output stays consistent with earlier renders in the chain.
Return only the rewritten prompt, nothing else.`

// Enhancer augments a raw prompt with the chain's accumulated design context.
type Enhancer struct {
	client *openai.Client
	model  string
}

func NewEnhancer(apiKey string) *Enhancer {
	return &Enhancer{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// Enhance returns the context-enriched prompt. Callers treat errors as
// non-fatal and fall back to the raw prompt.
func (e *Enhancer) Enhance(ctx context.Context, prompt string, generationContext map[string]any) (string, error) {
	if len(generationContext) == 0 {
		return prompt, nil
	}

	contextJSON, err := json.Marshal(generationContext)
	if err != nil {
		return prompt, fmt.Errorf("failed to encode generation context: %w", err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Design context:\n%s\n\nPrompt:\n%s", contextJSON, prompt),
			},
		},
	})
	if err != nil {
		return prompt, fmt.Errorf("prompt enhancement failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return prompt, fmt.Errorf("prompt enhancement returned no choices")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enhanced == "" {
		return prompt, fmt.Errorf("prompt enhancement returned empty prompt")
	}

	return enhanced, nil
}
