package memoryextract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const extractionPrompt = `Analyze this architectural rendering and return a JSON object with:
"styleCodes": {"colorPalette": [...], "lightingStyle": "...", "materialStyle": "...", "architecturalStyle": "..."},
"materials": [...],
"geometry": {"perspective": "...", "focalLength": "...", "cameraAngle": "..."}.
Return only the JSON object.`

// Extractor derives incremental pipeline memory from a completed output using
// a cheap vision model.
type Extractor struct {
	client *openai.Client
	model  string
}

func NewExtractor(apiKey string) *Extractor {
	return &Extractor{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// Extract returns a memory delta keyed for a structural merge into the
// chain's pipeline memory.
func (e *Extractor) Extract(ctx context.Context, outputUrl string) (map[string]any, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: outputUrl, Detail: openai.ImageURLDetailLow},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("memory extraction failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("memory extraction returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")

	var analysis map[string]any
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse extraction result: %w", err)
	}

	analysis["extractedAt"] = time.Now().UTC().Format(time.RFC3339)
	return analysis, nil
}
