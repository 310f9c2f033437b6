package pipeline

import (
	"context"
	"testing"

	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/services/modelinvoke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAdapter struct {
	outputs []*modelinvoke.Output
	errs    []error
	calls   int
}

func (s *stubAdapter) Invoke(ctx context.Context, req modelinvoke.Request) (*modelinvoke.Output, error) {
	i := s.calls
	s.calls++
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	return s.outputs[i], s.errs[i]
}

func retryTestPipeline(adapter modelinvoke.Adapter, maxAttempts int) *Pipeline {
	return &Pipeline{
		cfg: &config.Config{
			Generator: &config.GeneratorConfig{MaxAttempts: maxAttempts, TimeoutSeconds: 5},
			Pipeline:  &config.PipelineConfig{},
		},
		logger:  zap.NewNop(),
		adapter: adapter,
	}
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{nil, {Url: "https://cdn.example.com/out.png"}},
		errs:    []error{modelinvoke.NewError("backend returned status 503", true, nil), nil},
	}
	p := retryTestPipeline(adapter, 3)

	output, err := p.invokeWithRetries(context.Background(), zap.NewNop(), modelinvoke.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.png", output.Url)
	assert.Equal(t, 2, adapter.calls)
}

func TestInvokeDoesNotRetryPermanentErrors(t *testing.T) {
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{nil},
		errs:    []error{modelinvoke.NewError("backend rejected request with status 400", false, nil)},
	}
	p := retryTestPipeline(adapter, 3)

	_, err := p.invokeWithRetries(context.Background(), zap.NewNop(), modelinvoke.Request{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, modelinvoke.IsTransient(err) && adapter.calls > 1)
	assert.Equal(t, 1, adapter.calls)
}

func TestInvokeExhaustsTransientRetries(t *testing.T) {
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{nil},
		errs:    []error{modelinvoke.NewError("backend unreachable", true, nil)},
	}
	p := retryTestPipeline(adapter, 2)

	_, err := p.invokeWithRetries(context.Background(), zap.NewNop(), modelinvoke.Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, modelinvoke.IsTransient(err))
	assert.Equal(t, 2, adapter.calls)
}

func TestValidationErrorMessage(t *testing.T) {
	err := newValidationError("prompt", "must not be empty")
	assert.Equal(t, "invalid prompt: must not be empty", err.Error())
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := assert.AnError
	err := &PersistenceError{RenderID: "r1", Cause: cause}
	assert.ErrorIs(t, err, cause)
}
