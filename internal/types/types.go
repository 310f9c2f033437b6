package types

type Quality = string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

type ExecutionMode = string

const (
	ModeFull  ExecutionMode = "full"
	ModeQuick ExecutionMode = "quick"
)

type RenderEvent = string

const (
	EventRenderProcessing RenderEvent = "render.processing"
	EventRenderCompleted  RenderEvent = "render.completed"
	EventRenderFailed     RenderEvent = "render.failed"
)

// ReferencePayload is a raw reference image attached to a generation request.
type ReferencePayload struct {
	Data     []byte `json:"data" msgpack:"data"`
	MimeType string `json:"mime_type" msgpack:"mime_type"`
}

type SkipFlags struct {
	Validation        bool `json:"validation" msgpack:"validation"`
	PromptEnhancement bool `json:"prompt_enhancement" msgpack:"prompt_enhancement"`
	MemoryExtraction  bool `json:"memory_extraction" msgpack:"memory_extraction"`
}

type RenderSettings struct {
	Quality        Quality `json:"quality" msgpack:"quality"`
	AspectRatio    string  `json:"aspect_ratio" msgpack:"aspect_ratio"`
	Style          string  `json:"style,omitempty" msgpack:"style,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty" msgpack:"negative_prompt,omitempty"`
}

// GenerateParamsRequest is the wire shape accepted by the generate endpoints.
type GenerateParamsRequest struct {
	ProjectID         string            `json:"project_id" msgpack:"project_id"`
	ChainID           string            `json:"chain_id,omitempty" msgpack:"chain_id,omitempty"`
	ReferenceRenderID string            `json:"reference_render_id,omitempty" msgpack:"reference_render_id,omitempty"`
	Prompt            string            `json:"prompt" msgpack:"prompt"`
	Quality           Quality           `json:"quality" msgpack:"quality"`
	AspectRatio       string            `json:"aspect_ratio" msgpack:"aspect_ratio"`
	Style             string            `json:"style,omitempty" msgpack:"style,omitempty"`
	ReferenceImage    *ReferencePayload `json:"reference_image,omitempty" msgpack:"reference_image,omitempty"`
	StyleReference    *ReferencePayload `json:"style_reference,omitempty" msgpack:"style_reference,omitempty"`
	ToolContext       map[string]any    `json:"tool_context,omitempty" msgpack:"tool_context,omitempty"`
	Mode              ExecutionMode     `json:"mode,omitempty" msgpack:"mode,omitempty"`
	Skip              *SkipFlags        `json:"skip,omitempty" msgpack:"skip,omitempty"`
}

type GenerationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RenderEventData is the notification body recorded in the outbox when a
// render changes state, and later wrapped into the signed webhook payload.
type RenderEventData struct {
	RenderID  string `json:"renderId" msgpack:"renderId"`
	Status    string `json:"status" msgpack:"status"`
	OutputUrl string `json:"outputUrl,omitempty" msgpack:"outputUrl,omitempty"`
	Error     string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// WebhookPayload is the exact JSON shape posted to registered endpoints. The
// HMAC signature covers its marshaled bytes.
type WebhookPayload struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      RenderEventData `json:"data"`
}
