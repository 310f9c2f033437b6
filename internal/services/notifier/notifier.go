package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/db/repository"
	"github.com/renderiq/render-server/internal/mq"
	"github.com/renderiq/render-server/internal/types"
	"github.com/renderiq/render-server/internal/utils/webhookutil"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const claimBatchSize = 32

// Dispatcher drains the notification outbox and delivers signed webhook
// payloads to registered endpoints. It wakes on a queue signal published
// after each outbox write and also polls on an interval, so notifications
// survive a missed wakeup or a process restart.
type Dispatcher struct {
	cfg      *config.WebhookConfig
	outbox   repository.IOutboxRepository
	webhooks repository.IWebhookRepository
	queue    mq.MQ
	wp       *workerpool.WorkerPool
	client   *http.Client
	logger   *zap.Logger
	done     chan struct{}
}

func NewDispatcher(cfg *config.WebhookConfig, outbox repository.IOutboxRepository, webhooks repository.IWebhookRepository, queue mq.MQ, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		outbox:   outbox,
		webhooks: webhooks,
		queue:    queue,
		wp:       workerpool.New(4),
		client:   &http.Client{Timeout: time.Duration(cfg.DeliveryTimeoutSeconds) * time.Second},
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the wakeup listener and the poll loop. Both feed Drain;
// claiming moves entries out of the queued set, so overlapping triggers do
// not double-deliver. A claim abandoned by a crashed worker is reclaimed
// after a timeout, so delivery stays at-least-once.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.listen(ctx)
	go d.poll(ctx)
}

func (d *Dispatcher) Stop() {
	close(d.done)
	d.wp.StopWait()
}

func (d *Dispatcher) listen(ctx context.Context) {
	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := d.queue.Receive(ctx, config.DefaultNotifyTopic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				return
			}
			d.logger.Warn("notification wakeup receive failed", zap.Error(err))
			continue
		}
		if err := d.queue.Ack(config.DefaultNotifyTopic, msg); err != nil {
			d.logger.Warn("notification wakeup ack failed", zap.Error(err))
		}

		d.Drain(ctx)
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	interval := time.Duration(d.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain claims queued outbox entries and dispatches each to the active
// endpoints subscribed to its event.
func (d *Dispatcher) Drain(ctx context.Context) {
	entries, err := d.outbox.ClaimQueued(ctx, claimBatchSize)
	if err != nil {
		d.logger.Error("failed to claim outbox entries", zap.Error(err))
		return
	}

	for i := range entries {
		entry := entries[i]
		d.wp.Submit(func() {
			d.dispatch(ctx, entry.ID.String(), entry.Event, entry.Payload, entry.Attempts)
		})
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, entryID, event string, encoded []byte, attempts int) {
	var data types.RenderEventData
	if err := msgpack.Unmarshal(encoded, &data); err != nil {
		d.logger.Error("corrupt outbox payload", zap.String("entry_id", entryID), zap.Error(err))
		if err := d.outbox.MarkFailed(ctx, entryID); err != nil {
			d.logger.Error("failed to mark outbox entry failed", zap.String("entry_id", entryID), zap.Error(err))
		}
		return
	}

	body, err := json.Marshal(types.WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		d.logger.Error("failed to marshal webhook payload", zap.String("entry_id", entryID), zap.Error(err))
		return
	}

	endpoints, err := d.webhooks.ListActive(ctx)
	if err != nil {
		d.logger.Error("failed to list webhook endpoints", zap.Error(err))
		d.requeueOrFail(ctx, entryID, attempts)
		return
	}

	for i := range endpoints {
		endpoint := endpoints[i]
		if !endpoint.SubscribesTo(event) {
			continue
		}

		err := webhookutil.InvokeWithRetries(ctx, d.client, endpoint.Url, event, endpoint.Secret, body, d.cfg.MaxAttempts)
		if err != nil {
			d.logger.Warn("webhook delivery failed",
				zap.String("endpoint_id", endpoint.ID.String()),
				zap.String("event", event),
				zap.Error(err))
			if err := d.webhooks.RecordFailure(ctx, endpoint.ID.String(), d.cfg.FailureThreshold); err != nil {
				d.logger.Error("failed to record webhook failure", zap.String("endpoint_id", endpoint.ID.String()), zap.Error(err))
			}
			continue
		}

		if err := d.webhooks.RecordSuccess(ctx, endpoint.ID.String()); err != nil {
			d.logger.Error("failed to record webhook success", zap.String("endpoint_id", endpoint.ID.String()), zap.Error(err))
		}
	}

	// Endpoint failures count against the endpoint, not the entry. The entry
	// is done once every active subscriber has been attempted.
	if err := d.outbox.MarkDelivered(ctx, entryID); err != nil {
		d.logger.Error("failed to mark outbox entry delivered", zap.String("entry_id", entryID), zap.Error(err))
	}
}

func (d *Dispatcher) requeueOrFail(ctx context.Context, entryID string, attempts int) {
	if attempts >= d.cfg.MaxAttempts {
		if err := d.outbox.MarkFailed(ctx, entryID); err != nil {
			d.logger.Error("failed to mark outbox entry failed", zap.String("entry_id", entryID), zap.Error(err))
		}
		return
	}

	if err := d.outbox.Requeue(ctx, entryID); err != nil {
		d.logger.Error("failed to requeue outbox entry", zap.String("entry_id", entryID), zap.Error(err))
	}
}
