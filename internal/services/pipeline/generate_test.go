package pipeline

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/db/repository"
	"github.com/renderiq/render-server/internal/mq"
	"github.com/renderiq/render-server/internal/services/modelinvoke"
	"github.com/renderiq/render-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedEvent struct {
	event    string
	status   string
	ctxAlive bool
}

type fakeChains struct {
	mu     sync.Mutex
	chain  *models.Chain
	events []recordedEvent
}

func newFakeChains() *fakeChains {
	return &fakeChains{
		chain: &models.Chain{ID: uuid.Must(uuid.NewRandom()), Name: "Default Chain", IsDefault: true},
	}
}

func (f *fakeChains) ResolveChain(ctx context.Context, projectID uuid.UUID, chainID string) (*models.Chain, error) {
	f.chain.ProjectID = projectID
	return f.chain, nil
}

func (f *fakeChains) CreateRenderInChain(ctx context.Context, render *models.Render) (*models.Render, error) {
	render.ChainPosition = 0
	return render, nil
}

func (f *fakeChains) UpdateRenderAndNotify(ctx context.Context, render *models.Render, event string, data any) (*models.Render, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{
		event:    event,
		status:   string(render.Status),
		ctxAlive: ctx.Err() == nil,
	})
	return render, nil
}

func (f *fakeChains) recorded() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

type fakeMemory struct {
	mu      sync.Mutex
	payload map[string]any
	merged  []map[string]any
}

func (f *fakeMemory) GetContext(ctx context.Context, chainID string) (map[string]any, error) {
	if f.payload == nil {
		return map[string]any{}, nil
	}
	return f.payload, nil
}

func (f *fakeMemory) Merge(ctx context.Context, chainID string, delta map[string]any) (*models.PipelineMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, delta)
	return &models.PipelineMemory{}, nil
}

// fakeRenders panics on anything the flow under test should not touch.
type fakeRenders struct {
	repository.IRenderRepository
}

func (f *fakeRenders) GetLatestCompletedInChain(ctx context.Context, chainID string) (*models.Render, error) {
	return nil, sql.ErrNoRows
}

type countingEnhancer struct{ calls int }

func (e *countingEnhancer) Enhance(ctx context.Context, prompt string, generationContext map[string]any) (string, error) {
	e.calls++
	return prompt + ", golden hour lighting", nil
}

type countingExtractor struct{ calls int }

func (e *countingExtractor) Extract(ctx context.Context, outputUrl string) (map[string]any, error) {
	e.calls++
	return map[string]any{"palette": "warm"}, nil
}

type blockingAdapter struct{}

func (blockingAdapter) Invoke(ctx context.Context, req modelinvoke.Request) (*modelinvoke.Output, error) {
	<-ctx.Done()
	return nil, modelinvoke.NewError("invocation timed out", true, ctx.Err())
}

func stagedTestPipeline(adapter modelinvoke.Adapter, chains *fakeChains, memory *fakeMemory, enhancer PromptEnhancer, extractor MemoryExtractor) *Pipeline {
	cfg := testPipelineConfig()
	cfg.Generator = &config.GeneratorConfig{MaxAttempts: 1, TimeoutSeconds: 5}
	cfg.Pipeline.PersistMaxAttempts = 1

	queue, _ := mq.NewInMemoryMQ(8)
	return &Pipeline{
		cfg:       cfg,
		logger:    zap.NewNop(),
		chains:    chains,
		memory:    memory,
		enhancer:  enhancer,
		extractor: extractor,
		adapter:   adapter,
		renders:   &fakeRenders{},
		queue:     queue,
	}
}

func TestGenerateReturnsCompletedRender(t *testing.T) {
	chains := newFakeChains()
	memory := &fakeMemory{}
	enhancer := &countingEnhancer{}
	extractor := &countingExtractor{}
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{{Url: "https://cdn.example.com/out.png"}},
		errs:    []error{nil},
	}
	p := stagedTestPipeline(adapter, chains, memory, enhancer, extractor)

	render, err := p.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, render)

	assert.Equal(t, models.RenderStatusCompleted, render.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", render.OutputUrl)
	assert.Equal(t, 1, enhancer.calls)
	assert.Equal(t, 1, extractor.calls)
	assert.Len(t, memory.merged, 1)

	events := chains.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventRenderProcessing, events[0].event)
	assert.Equal(t, types.EventRenderCompleted, events[1].event)
}

func TestQuickGenerateSkipsEnhancerAndExtractor(t *testing.T) {
	chains := newFakeChains()
	memory := &fakeMemory{}
	enhancer := &countingEnhancer{}
	extractor := &countingExtractor{}
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{{Url: "https://cdn.example.com/out.png"}},
		errs:    []error{nil},
	}
	p := stagedTestPipeline(adapter, chains, memory, enhancer, extractor)

	render, err := p.QuickGenerate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.RenderStatusCompleted, render.Status)
	assert.Zero(t, enhancer.calls)
	assert.Zero(t, extractor.calls)
	assert.Empty(t, memory.merged)
}

func TestGenerateTimeoutPersistsFailedRender(t *testing.T) {
	chains := newFakeChains()
	p := stagedTestPipeline(blockingAdapter{}, chains, &fakeMemory{}, &countingEnhancer{}, &countingExtractor{})
	p.cfg.Generator.TimeoutSeconds = 1

	render, err := p.Generate(context.Background(), validRequest())
	require.Error(t, err)
	require.NotNil(t, render)

	var invocationErr *ModelInvocationError
	require.ErrorAs(t, err, &invocationErr)
	assert.True(t, invocationErr.Transient)

	assert.Equal(t, models.RenderStatusFailed, render.Status)
	assert.NotEmpty(t, render.ErrorMessage)

	// The terminal write must land even though the invocation context has
	// already expired.
	events := chains.recorded()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.EventRenderFailed, last.event)
	assert.Equal(t, string(models.RenderStatusFailed), last.status)
	assert.True(t, last.ctxAlive)
}

func TestSubmitReturnsPendingThenCompletes(t *testing.T) {
	chains := newFakeChains()
	adapter := &stubAdapter{
		outputs: []*modelinvoke.Output{{Url: "https://cdn.example.com/out.png"}},
		errs:    []error{nil},
	}
	p := stagedTestPipeline(adapter, chains, &fakeMemory{}, &countingEnhancer{}, &countingExtractor{})

	render, err := p.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.RenderStatusPending, render.Status)

	p.Wait()

	events := chains.recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventRenderCompleted, events[len(events)-1].event)
}
