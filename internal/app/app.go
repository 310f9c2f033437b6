package app

import (
	"context"
	"fmt"

	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/db"
	"github.com/renderiq/render-server/internal/db/drivers"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/db/repository"
	"github.com/renderiq/render-server/internal/mq"
	"github.com/renderiq/render-server/internal/services/chainsvc"
	"github.com/renderiq/render-server/internal/services/enhancement"
	"github.com/renderiq/render-server/internal/services/filestorage"
	"github.com/renderiq/render-server/internal/services/fileuploader"
	"github.com/renderiq/render-server/internal/services/memoryextract"
	"github.com/renderiq/render-server/internal/services/memorysvc"
	"github.com/renderiq/render-server/internal/services/modelinvoke"
	"github.com/renderiq/render-server/internal/services/notifier"
	"github.com/renderiq/render-server/internal/services/pipeline"
	"github.com/renderiq/render-server/pkg/logger"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type App struct {
	mq           mq.MQ
	db           *bun.DB
	config       *config.Config
	ctx          context.Context
	cancelFunc   context.CancelFunc
	fileuploader *fileuploader.Uploader
	pipeline     *pipeline.Pipeline
	notifier     *notifier.Dispatcher

	Logger *zap.Logger

	RenderRepository  repository.IRenderRepository
	ChainRepository   repository.IChainRepository
	MemoryRepository  repository.IMemoryRepository
	WebhookRepository repository.IWebhookRepository
	OutboxRepository  repository.IOutboxRepository

	ChainService  *chainsvc.Service
	MemoryService *memorysvc.Service
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.db = driver.GetDB()
		return nil
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		mq, err := mq.NewMQ(app.config)
		if err != nil {
			return err
		}
		app.mq = mq
		return nil
	}
}

func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		dbConn, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}
		app.db = dbConn.GetDB()

		// Ensure tables exist
		err = app.db.RunInTx(app.ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tables := []interface{}{
				(*models.Chain)(nil),
				(*models.Render)(nil),
				(*models.PipelineMemory)(nil),
				(*models.WebhookEndpoint)(nil),
				(*models.NotificationOutbox)(nil),
			}

			for _, table := range tables {
				if _, err := tx.NewCreateTable().
					Model(table).
					IfNotExists().
					Exec(ctx); err != nil {
					return fmt.Errorf("failed to create table: %w", err)
				}
			}

			// One default chain per project; render inserts rely on it.
			if _, err := tx.NewCreateIndex().
				Model((*models.Chain)(nil)).
				Index("idx_chains_project_default").
				Unique().
				Column("project_id", "is_default").
				Where("is_default = true").
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create default chain index: %w", err)
			}

			return nil
		})
		if err != nil {
			return err
		}

		// Initialize repositories
		app.RenderRepository = repository.NewRenderRepository(app.db)
		app.ChainRepository = repository.NewChainRepository(app.db)
		app.MemoryRepository = repository.NewMemoryRepository(app.db)
		app.WebhookRepository = repository.NewWebhookRepository(app.db)
		app.OutboxRepository = repository.NewOutboxRepository(app.db)

		app.ChainService = chainsvc.NewService(app.db, app.RenderRepository, app.ChainRepository, app.OutboxRepository)
		app.MemoryService = memorysvc.NewService(app.MemoryRepository)

		return nil
	}
}

func WithFileUploader() OptionFunc {
	return func(app *App) error {
		filestorage, err := filestorage.NewFileStorage(app.Config())
		if err != nil {
			return err
		}
		app.fileuploader = fileuploader.NewFileUploader(filestorage, 10)
		return nil
	}
}

// WithPipeline wires the generation pipeline. Requires the database, queue
// and uploader options to have run first.
func WithPipeline() OptionFunc {
	return func(app *App) error {
		if app.db == nil || app.mq == nil || app.fileuploader == nil {
			return fmt.Errorf("pipeline requires db, mq and file uploader to be initialized")
		}
		if app.config.OpenAI == nil || app.config.OpenAI.APIKey == "" {
			return fmt.Errorf("openAI API-key is not set. Cannot enable the generation pipeline")
		}

		app.pipeline = pipeline.NewPipeline(
			app.config,
			app.Logger,
			app.ChainService,
			app.MemoryService,
			enhancement.NewEnhancer(app.config.OpenAI.APIKey),
			memoryextract.NewExtractor(app.config.OpenAI.APIKey),
			modelinvoke.NewHTTPAdapter(app.config.Generator),
			app.fileuploader,
			app.RenderRepository,
			app.mq,
		)
		return nil
	}
}

// WithNotifier starts the outbox dispatcher and the stale render sweeper.
func WithNotifier() OptionFunc {
	return func(app *App) error {
		if app.db == nil || app.mq == nil {
			return fmt.Errorf("notifier requires db and mq to be initialized")
		}

		app.notifier = notifier.NewDispatcher(app.config.Webhook, app.OutboxRepository, app.WebhookRepository, app.mq, app.Logger)
		app.notifier.Start(app.ctx)

		if app.pipeline != nil {
			app.pipeline.StartSweeper(app.ctx)
		}
		return nil
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config.Environment)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			app.cancelFunc()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.pipeline != nil {
		app.pipeline.Wait()
	}
	if app.notifier != nil {
		app.notifier.Stop()
	}
	if app.fileuploader != nil {
		app.fileuploader.Stop()
	}
	if app.mq != nil {
		app.mq.Close()
	}
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Uploader() *fileuploader.Uploader {
	return app.fileuploader
}

func (app *App) Pipeline() *pipeline.Pipeline {
	return app.pipeline
}

func (app *App) Notifier() *notifier.Dispatcher {
	return app.notifier
}
