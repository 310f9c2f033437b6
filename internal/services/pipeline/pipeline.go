package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/db/repository"
	"github.com/renderiq/render-server/internal/mq"
	"github.com/renderiq/render-server/internal/services/fileuploader"
	"github.com/renderiq/render-server/internal/services/modelinvoke"
	"github.com/renderiq/render-server/internal/services/thumbnail"
	"github.com/renderiq/render-server/internal/types"
	"github.com/renderiq/render-server/internal/utils/jsonutil"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// persistTimeout bounds terminal-state writes independently of the invocation
// context, which may already be expired by the time a render fails.
const persistTimeout = 30 * time.Second

// PromptEnhancer rewrites a prompt using the chain's accumulated context.
type PromptEnhancer interface {
	Enhance(ctx context.Context, prompt string, generationContext map[string]any) (string, error)
}

// MemoryExtractor derives a memory delta from a completed output.
type MemoryExtractor interface {
	Extract(ctx context.Context, outputUrl string) (map[string]any, error)
}

// ChainStore is the slice of the chain service the pipeline depends on.
type ChainStore interface {
	ResolveChain(ctx context.Context, projectID uuid.UUID, chainID string) (*models.Chain, error)
	CreateRenderInChain(ctx context.Context, render *models.Render) (*models.Render, error)
	UpdateRenderAndNotify(ctx context.Context, render *models.Render, event string, data any) (*models.Render, error)
}

// MemoryStore is the slice of the memory service the pipeline depends on.
type MemoryStore interface {
	GetContext(ctx context.Context, chainID string) (map[string]any, error)
	Merge(ctx context.Context, chainID string, delta map[string]any) (*models.PipelineMemory, error)
}

// Pipeline runs a generation request through its stages: validation, context
// resolution, prompt enhancement, model invocation, persistence, memory
// extraction and notification. Generate blocks until the render reaches a
// terminal state; Submit returns after the pending row exists and finishes the
// remaining stages in the background.
type Pipeline struct {
	cfg       *config.Config
	logger    *zap.Logger
	chains    ChainStore
	memory    MemoryStore
	enhancer  PromptEnhancer
	extractor MemoryExtractor
	adapter   modelinvoke.Adapter
	uploader  *fileuploader.Uploader
	renders   repository.IRenderRepository
	queue     mq.MQ
	wg        sync.WaitGroup
}

func NewPipeline(
	cfg *config.Config,
	logger *zap.Logger,
	chains ChainStore,
	memory MemoryStore,
	enhancer PromptEnhancer,
	extractor MemoryExtractor,
	adapter modelinvoke.Adapter,
	uploader *fileuploader.Uploader,
	renders repository.IRenderRepository,
	queue mq.MQ,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		chains:    chains,
		memory:    memory,
		enhancer:  enhancer,
		extractor: extractor,
		adapter:   adapter,
		uploader:  uploader,
		renders:   renders,
		queue:     queue,
	}
}

// job carries a render through the stages that follow row creation.
type job struct {
	render            *models.Render
	req               *types.GenerateParamsRequest
	generationContext map[string]any
	referenceUrl      string
	skip              types.SkipFlags
}

// Generate runs the full pipeline and blocks until the render reaches a
// terminal state. On success the returned render is completed and carries its
// output url; after the row exists, failures return the failed render together
// with a typed error describing the stage that broke.
func (p *Pipeline) Generate(ctx context.Context, req *types.GenerateParamsRequest) (*models.Render, error) {
	j, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	return p.run(ctx, j)
}

// QuickGenerate is sugar for a request in quick mode, which skips prompt
// enhancement, memory extraction, and validation for the standard tier.
func (p *Pipeline) QuickGenerate(ctx context.Context, req *types.GenerateParamsRequest) (*models.Render, error) {
	req.Mode = types.ModeQuick
	return p.Generate(ctx, req)
}

// Submit creates the pending render row and finishes the remaining stages in
// the background. Callers poll the render or subscribe to webhooks for the
// outcome.
func (p *Pipeline) Submit(ctx context.Context, req *types.GenerateParamsRequest) (*models.Render, error) {
	j, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// The background run mutates the job's render; hand the caller a copy.
	pending := *j.render

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.run(context.Background(), j); err != nil {
			p.logger.Warn("background render finished with error",
				zap.String("render_id", j.render.ID.String()), zap.Error(err))
		}
	}()

	return &pending, nil
}

// Wait blocks until all in-flight background renders finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// prepare validates the request, resolves its chain and context, and inserts
// the pending render row at its chain position.
func (p *Pipeline) prepare(ctx context.Context, req *types.GenerateParamsRequest) (*job, error) {
	skip := p.effectiveSkip(req)

	if p.shouldValidate(req, skip) {
		if err := p.validate(req); err != nil {
			return nil, err
		}
	} else {
		// Reference payload size and type checks are not skippable; a
		// malformed upload fails fast no matter the mode.
		if err := p.validateReference("reference_image", req.ReferenceImage); err != nil {
			return nil, err
		}
		if err := p.validateReference("style_reference", req.StyleReference); err != nil {
			return nil, err
		}
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return nil, newValidationError("project_id", "must be a valid uuid")
	}

	chain, err := p.chains.ResolveChain(ctx, projectID, req.ChainID)
	if err != nil {
		return nil, &ContextError{Message: "failed to resolve chain", Cause: err}
	}

	referenceUrl, referenceID, err := p.resolveReference(ctx, chain.ID.String(), req.ReferenceRenderID)
	if err != nil {
		return nil, err
	}

	memoryContext, err := p.memory.GetContext(ctx, chain.ID.String())
	if err != nil {
		return nil, &ContextError{Message: "failed to load pipeline memory", Cause: err}
	}

	generationContext := jsonutil.MergeMaps(memoryContext, req.ToolContext)
	contextData, err := json.Marshal(generationContext)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation context: %w", err)
	}

	settings, err := json.Marshal(types.RenderSettings{
		Quality:     req.Quality,
		AspectRatio: req.AspectRatio,
		Style:       req.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode render settings: %w", err)
	}

	render := &models.Render{
		ID:                uuid.Must(uuid.NewRandom()),
		ProjectID:         projectID,
		ChainID:           chain.ID,
		ReferenceRenderID: referenceID,
		Type:              models.RenderTypeImage,
		Prompt:            req.Prompt,
		Settings:          settings,
		Status:            models.RenderStatusPending,
		ContextData:       contextData,
	}

	render, err = p.chains.CreateRenderInChain(ctx, render)
	if err != nil {
		return nil, fmt.Errorf("failed to create render: %w", err)
	}

	return &job{
		render:            render,
		req:               req,
		generationContext: generationContext,
		referenceUrl:      referenceUrl,
		skip:              skip,
	}, nil
}

func (p *Pipeline) effectiveSkip(req *types.GenerateParamsRequest) types.SkipFlags {
	var skip types.SkipFlags
	if req.Skip != nil {
		skip = *req.Skip
	}

	if req.Mode == types.ModeQuick {
		// Quick mode only waives full validation for the cheap tier; higher
		// tiers are expensive enough that a bad request should fail early.
		if req.Quality == types.QualityStandard {
			skip.Validation = true
		}
		skip.PromptEnhancement = true
		skip.MemoryExtraction = true
	}

	return skip
}

// resolveReference picks the image the backend should stay consistent with.
// An explicit reference must be a completed render; with none given, the
// latest completed render in the chain is used so chains stay visually
// continuous by default.
func (p *Pipeline) resolveReference(ctx context.Context, chainID, referenceRenderID string) (string, uuid.UUID, error) {
	if referenceRenderID != "" {
		ref, err := p.renders.GetByID(ctx, referenceRenderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", uuid.Nil, &ContextError{Message: fmt.Sprintf("reference render %s not found", referenceRenderID)}
			}
			return "", uuid.Nil, &ContextError{Message: "failed to load reference render", Cause: err}
		}
		if ref.Status != models.RenderStatusCompleted || ref.OutputUrl == "" {
			return "", uuid.Nil, &ContextError{Message: fmt.Sprintf("reference render %s has no completed output", referenceRenderID)}
		}
		return ref.OutputUrl, ref.ID, nil
	}

	latest, err := p.renders.GetLatestCompletedInChain(ctx, chainID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", uuid.Nil, nil
		}
		return "", uuid.Nil, &ContextError{Message: "failed to load chain history", Cause: err}
	}

	return latest.OutputUrl, latest.ID, nil
}

// run drives a prepared render through the slow stages and always leaves it in
// a terminal state; the only escape is a persistence failure, which the
// sweeper later reconciles.
func (p *Pipeline) run(ctx context.Context, j *job) (*models.Render, error) {
	timeout := time.Duration(p.cfg.Generator.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	render := j.render
	logger := p.logger.With(zap.String("render_id", render.ID.String()), zap.String("chain_id", render.ChainID.String()))

	render.Status = models.RenderStatusProcessing
	render.StartedAt = bunNow()
	render.UpdatedAt = bunNow()
	if _, err := p.chains.UpdateRenderAndNotify(ctx, render, types.EventRenderProcessing, types.RenderEventData{
		RenderID: render.ID.String(),
		Status:   string(models.RenderStatusProcessing),
	}); err != nil {
		logger.Warn("failed to mark render processing", zap.Error(err))
	} else {
		p.wakeNotifier(ctx)
	}

	prompt := j.req.Prompt
	if !j.skip.PromptEnhancement {
		enhanced, err := p.enhancer.Enhance(ctx, prompt, j.generationContext)
		if err != nil {
			logger.Warn("prompt enhancement failed, using raw prompt", zap.Error(err))
		} else {
			prompt = enhanced
		}
	}

	invokeReq := modelinvoke.Request{
		Prompt:      prompt,
		Quality:     j.req.Quality,
		AspectRatio: j.req.AspectRatio,
	}
	if j.req.ReferenceImage != nil {
		invokeReq.References = append(invokeReq.References, *j.req.ReferenceImage)
	}
	if j.req.StyleReference != nil {
		invokeReq.References = append(invokeReq.References, *j.req.StyleReference)
	}
	if j.referenceUrl != "" {
		invokeReq.ReferenceUrls = append(invokeReq.ReferenceUrls, j.referenceUrl)
	}

	output, err := p.invokeWithRetries(ctx, logger, invokeReq)
	if err != nil {
		invErr := &ModelInvocationError{
			RenderID:  render.ID.String(),
			Transient: modelinvoke.IsTransient(err),
			Cause:     err,
		}
		p.fail(logger, render, err)
		return render, invErr
	}

	outputUrl, outputKey, thumbnailUrl := p.storeOutput(logger, output)
	if outputUrl == "" {
		uploadErr := fmt.Errorf("output upload failed")
		p.fail(logger, render, uploadErr)
		return render, uploadErr
	}

	render.Status = models.RenderStatusCompleted
	render.OutputUrl = outputUrl
	render.OutputKey = outputKey
	render.ThumbnailUrl = thumbnailUrl
	render.CompletedAt = bunNow()
	render.UpdatedAt = bunNow()

	if err := p.persistTerminal(render, types.RenderEventData{
		RenderID:  render.ID.String(),
		Status:    string(models.RenderStatusCompleted),
		OutputUrl: outputUrl,
	}); err != nil {
		logger.Error("failed to persist completed render", zap.Error(err))
		return render, err
	}
	logger.Info("render completed", zap.Int("chain_position", render.ChainPosition))

	if !j.skip.MemoryExtraction {
		p.extractMemory(ctx, logger, render)
	}

	return render, nil
}

// invokeWithRetries retries the backend only on transient classifications.
func (p *Pipeline) invokeWithRetries(ctx context.Context, logger *zap.Logger, req modelinvoke.Request) (*modelinvoke.Output, error) {
	maxAttempts := p.cfg.Generator.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var output *modelinvoke.Output
		output, err = p.adapter.Invoke(ctx, req)
		if err == nil {
			return output, nil
		}
		if !modelinvoke.IsTransient(err) {
			return nil, err
		}

		logger.Warn("model invocation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return nil, err
}

// storeOutput uploads raw output bytes to file storage and generates a
// thumbnail. Backends that return a hosted URL bypass the upload.
func (p *Pipeline) storeOutput(logger *zap.Logger, output *modelinvoke.Output) (outputUrl, outputKey, thumbnailUrl string) {
	if len(output.Data) == 0 {
		return output.Url, output.Key, ""
	}

	extension := mimetype.Detect(output.Data).Extension()
	response := make(chan string, 1)
	p.uploader.UploadBytes(output.Data, extension, response)
	outputUrl = <-response

	thumb, err := thumbnail.Generate(output.Data)
	if err != nil {
		logger.Warn("thumbnail generation failed", zap.Error(err))
		return outputUrl, output.Key, ""
	}

	thumbResponse := make(chan string, 1)
	p.uploader.UploadBytes(thumb, ".jpg", thumbResponse)
	thumbnailUrl = <-thumbResponse

	return outputUrl, output.Key, thumbnailUrl
}

func (p *Pipeline) fail(logger *zap.Logger, render *models.Render, cause error) {
	logger.Error("render failed", zap.Error(cause))

	render.Status = models.RenderStatusFailed
	render.ErrorMessage = cause.Error()
	render.CompletedAt = bunNow()
	render.UpdatedAt = bunNow()

	if err := p.persistTerminal(render, types.RenderEventData{
		RenderID: render.ID.String(),
		Status:   string(models.RenderStatusFailed),
		Error:    cause.Error(),
	}); err != nil {
		logger.Error("failed to persist failed render", zap.Error(err))
	}
}

// persistTerminal writes the terminal state with bounded retries. It runs on
// its own context so an expired invocation deadline cannot block the write;
// the write and the notification intent commit together, and if every attempt
// fails the stale render sweeper eventually reconciles the row.
func (p *Pipeline) persistTerminal(render *models.Render, data types.RenderEventData) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	maxAttempts := p.cfg.Pipeline.PersistMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	event := types.EventRenderCompleted
	if render.Status == models.RenderStatusFailed {
		event = types.EventRenderFailed
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if _, err = p.chains.UpdateRenderAndNotify(ctx, render, event, data); err == nil {
			p.wakeNotifier(ctx)
			return nil
		}

		select {
		case <-ctx.Done():
			p.queueReconciliation(data)
			return &PersistenceError{RenderID: render.ID.String(), Cause: err}
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	p.queueReconciliation(data)
	return &PersistenceError{RenderID: render.ID.String(), Cause: err}
}

// queueReconciliation parks the outcome of a render whose terminal write
// failed, so the output reference survives until the sweeper or an operator
// picks it up. Uses a fresh context: the caller's is usually already dead.
func (p *Pipeline) queueReconciliation(data types.RenderEventData) {
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		p.logger.Error("failed to encode reconciliation event", zap.Error(err))
		return
	}

	if err := p.queue.Publish(context.Background(), config.DefaultStreamsTopic, encoded); err != nil {
		p.logger.Error("failed to queue reconciliation event",
			zap.String("render_id", data.RenderID), zap.Error(err))
	}
}

// extractMemory is best-effort: a failed extraction or merge never affects
// the completed render.
func (p *Pipeline) extractMemory(ctx context.Context, logger *zap.Logger, render *models.Render) {
	delta, err := p.extractor.Extract(ctx, render.OutputUrl)
	if err != nil {
		logger.Warn("memory extraction failed",
			zap.Error(&MemoryMergeError{ChainID: render.ChainID.String(), Cause: err}))
		return
	}

	if _, err := p.memory.Merge(ctx, render.ChainID.String(), delta); err != nil {
		logger.Warn("memory merge failed",
			zap.Error(&MemoryMergeError{ChainID: render.ChainID.String(), Cause: err}))
		return
	}

	logger.Debug("pipeline memory updated")
}

func (p *Pipeline) wakeNotifier(ctx context.Context) {
	if err := p.queue.Publish(ctx, config.DefaultNotifyTopic, []byte("wake")); err != nil {
		p.logger.Warn("failed to publish notification wakeup", zap.Error(err))
	}
}

// StartSweeper periodically fails renders stuck in a non-terminal state,
// covering crashed workers and persistence failures that exhausted their
// retries.
func (p *Pipeline) StartSweeper(ctx context.Context) {
	interval := time.Duration(p.cfg.Pipeline.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	maxAge := time.Duration(p.cfg.Pipeline.ProcessingMaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := p.renders.SweepStale(ctx, maxAge, "processing timed out")
				if err != nil {
					p.logger.Error("stale render sweep failed", zap.Error(err))
					continue
				}
				if swept > 0 {
					p.logger.Warn("swept stale renders", zap.Int("count", swept))
					p.wakeNotifier(ctx)
				}
			}
		}
	}()
}

func bunNow() bun.NullTime {
	return bun.NullTime{Time: time.Now()}
}
