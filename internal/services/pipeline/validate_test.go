package pipeline

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipelineConfig() *config.Config {
	return &config.Config{
		Pipeline: &config.PipelineConfig{
			MaxPromptLength:     100,
			MaxReferenceBytes:   1 << 20,
			AllowedAspectRatios: []string{"1:1", "16:9"},
		},
	}
}

func validRequest() *types.GenerateParamsRequest {
	return &types.GenerateParamsRequest{
		ProjectID:   uuid.Must(uuid.NewRandom()).String(),
		Prompt:      "a lakeside pavilion at dusk",
		Quality:     types.QualityHigh,
		AspectRatio: "16:9",
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	p := &Pipeline{cfg: testPipelineConfig()}

	req := validRequest()
	req.ReferenceImage = &types.ReferencePayload{Data: pngBytes(t), MimeType: "image/png"}

	assert.NoError(t, p.validate(req))
}

func TestValidateRejections(t *testing.T) {
	p := &Pipeline{cfg: testPipelineConfig()}

	tests := []struct {
		name   string
		mutate func(*types.GenerateParamsRequest)
		field  string
	}{
		{
			name:   "bad project id",
			mutate: func(r *types.GenerateParamsRequest) { r.ProjectID = "not-a-uuid" },
			field:  "project_id",
		},
		{
			name:   "empty prompt",
			mutate: func(r *types.GenerateParamsRequest) { r.Prompt = "   " },
			field:  "prompt",
		},
		{
			name:   "prompt too long",
			mutate: func(r *types.GenerateParamsRequest) { r.Prompt = strings.Repeat("x", 101) },
			field:  "prompt",
		},
		{
			name:   "unknown quality",
			mutate: func(r *types.GenerateParamsRequest) { r.Quality = "cinematic" },
			field:  "quality",
		},
		{
			name:   "unsupported aspect ratio",
			mutate: func(r *types.GenerateParamsRequest) { r.AspectRatio = "2:1" },
			field:  "aspect_ratio",
		},
		{
			name: "empty reference image",
			mutate: func(r *types.GenerateParamsRequest) {
				r.ReferenceImage = &types.ReferencePayload{}
			},
			field: "reference_image",
		},
		{
			name: "non-image style reference",
			mutate: func(r *types.GenerateParamsRequest) {
				r.StyleReference = &types.ReferencePayload{Data: []byte("%PDF-1.4 not an image")}
			},
			field: "style_reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := p.validate(req)
			require.Error(t, err)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestValidateOversizedReference(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Pipeline.MaxReferenceBytes = 16
	p := &Pipeline{cfg: cfg}

	req := validRequest()
	req.ReferenceImage = &types.ReferencePayload{Data: pngBytes(t)}

	err := p.validate(req)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "reference_image", validationErr.Field)
}

func TestShouldValidate(t *testing.T) {
	cfg := testPipelineConfig()
	p := &Pipeline{cfg: cfg}

	req := validRequest()
	assert.True(t, p.shouldValidate(req, types.SkipFlags{}))
	assert.False(t, p.shouldValidate(req, types.SkipFlags{Validation: true}))

	// The standard-quality shortcut only applies when configured.
	req.Quality = types.QualityStandard
	assert.True(t, p.shouldValidate(req, types.SkipFlags{}))

	cfg.Pipeline.SkipValidationForStandard = true
	assert.False(t, p.shouldValidate(req, types.SkipFlags{}))

	req.Quality = types.QualityUltra
	assert.True(t, p.shouldValidate(req, types.SkipFlags{}))
}

func TestEffectiveSkip(t *testing.T) {
	p := &Pipeline{cfg: testPipelineConfig()}

	req := validRequest()
	assert.Equal(t, types.SkipFlags{}, p.effectiveSkip(req))

	req.Skip = &types.SkipFlags{PromptEnhancement: true}
	assert.Equal(t, types.SkipFlags{PromptEnhancement: true}, p.effectiveSkip(req))

	// Quick mode skips enhancement and extraction, but full validation is
	// only waived for the standard tier.
	req.Mode = types.ModeQuick
	assert.Equal(t, types.SkipFlags{
		PromptEnhancement: true,
		MemoryExtraction:  true,
	}, p.effectiveSkip(req))

	req.Quality = types.QualityStandard
	assert.Equal(t, types.SkipFlags{
		Validation:        true,
		PromptEnhancement: true,
		MemoryExtraction:  true,
	}, p.effectiveSkip(req))
}
