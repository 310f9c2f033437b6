package pipeline

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/types"
)

func (p *Pipeline) validate(req *types.GenerateParamsRequest) error {
	if _, err := uuid.Parse(req.ProjectID); err != nil {
		return newValidationError("project_id", "must be a valid uuid")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return newValidationError("prompt", "must not be empty")
	}
	if len(prompt) > p.cfg.Pipeline.MaxPromptLength {
		return newValidationError("prompt", "exceeds maximum length of %d characters", p.cfg.Pipeline.MaxPromptLength)
	}

	switch req.Quality {
	case types.QualityStandard, types.QualityHigh, types.QualityUltra:
	default:
		return newValidationError("quality", "must be one of standard, high, ultra")
	}

	if !p.aspectRatioAllowed(req.AspectRatio) {
		return newValidationError("aspect_ratio", "%q is not a supported aspect ratio", req.AspectRatio)
	}

	if err := p.validateReference("reference_image", req.ReferenceImage); err != nil {
		return err
	}
	if err := p.validateReference("style_reference", req.StyleReference); err != nil {
		return err
	}

	return nil
}

func (p *Pipeline) aspectRatioAllowed(ratio string) bool {
	for _, allowed := range p.cfg.Pipeline.AllowedAspectRatios {
		if ratio == allowed {
			return true
		}
	}
	return false
}

func (p *Pipeline) validateReference(field string, ref *types.ReferencePayload) error {
	if ref == nil {
		return nil
	}

	if len(ref.Data) == 0 {
		return newValidationError(field, "must not be empty")
	}
	if len(ref.Data) > p.cfg.Pipeline.MaxReferenceBytes {
		return newValidationError(field, "exceeds maximum size of %d bytes", p.cfg.Pipeline.MaxReferenceBytes)
	}

	detected := mimetype.Detect(ref.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return newValidationError(field, "must be an image, got %s", detected.String())
	}

	return nil
}

// shouldValidate applies the skip flags and the standard-quality shortcut.
// An explicit skip bypasses validation; quick mode only does so for standard
// quality, via the flag effectiveSkip sets. The configured shortcut waives
// validation for any standard-quality request.
func (p *Pipeline) shouldValidate(req *types.GenerateParamsRequest, skip types.SkipFlags) bool {
	if skip.Validation {
		return false
	}
	if p.cfg.Pipeline.SkipValidationForStandard && req.Quality == types.QualityStandard {
		return false
	}
	return true
}
