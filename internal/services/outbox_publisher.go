package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// EventConsumer handles one outbox message. Returning an error counts as a
// failed delivery and schedules a retry.
type EventConsumer func(ctx context.Context, msg models.OutboxMessage) error

// OutboxPublisher polls the outbox and delivers events to their registered
// consumers: at-least-once, per-aggregate FIFO while deliveries keep
// succeeding, dead-letter after the retry budget.
type OutboxPublisher struct {
	repo      *database.OutboxRepository
	cfg       config.OutboxConfig
	consumers map[string]EventConsumer
	logger    *logrus.Logger

	mu           sync.Mutex
	shuttingDown bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	started      bool
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(repo *database.OutboxRepository, cfg config.OutboxConfig, logger *logrus.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		repo:      repo,
		cfg:       cfg,
		consumers: make(map[string]EventConsumer),
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Register binds a consumer to an event type. Must be called before Start.
func (p *OutboxPublisher) Register(eventType string, consumer EventConsumer) {
	p.consumers[eventType] = consumer
}

// Start launches the poll loop.
func (p *OutboxPublisher) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"poll_interval": p.cfg.PollInterval,
		"batch_size":    p.cfg.BatchSize,
	}).Info("Outbox publisher started")

	go p.loop()
}

func (p *OutboxPublisher) loop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.isShuttingDown() {
				return
			}
			if err := p.RunOnce(context.Background()); err != nil {
				p.logger.WithError(err).Error("Outbox poll failed")
			}
		}
	}
}

// RunOnce claims one batch and delivers it with bounded parallelism. Exposed
// for operator tooling and tests.
func (p *OutboxPublisher) RunOnce(ctx context.Context) error {
	batch, err := p.repo.ClaimBatch(ctx, p.cfg.BatchSize, p.cfg.MaxRetries)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for _, msg := range batch {
		msg := msg
		g.Go(func() error {
			p.deliver(gctx, msg)
			return nil
		})
	}
	return g.Wait()
}

// deliver invokes the consumer under the per-call timeout and records the
// outcome. Failures wait out the backoff slot before releasing the claim so a
// hot loop cannot hammer a struggling consumer.
func (p *OutboxPublisher) deliver(ctx context.Context, msg models.OutboxMessage) {
	consumer, ok := p.consumers[msg.EventType]
	if !ok {
		// No consumer registered; publish as a no-op so the row drains.
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			p.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to mark unconsumed message published")
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	err := consumer(callCtx, msg)
	cancel()

	if err == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			p.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to mark message published")
		}
		return
	}

	p.logger.WithError(err).WithFields(logrus.Fields{
		"message_id":  msg.ID,
		"event_type":  msg.EventType,
		"retry_count": msg.RetryCount,
	}).Warn("Outbox delivery failed")

	p.backoff(msg.RetryCount)

	if err := p.repo.MarkFailed(ctx, msg.ID, err.Error()); err != nil {
		p.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to record delivery failure")
	}
	if msg.RetryCount+1 >= p.cfg.MaxRetries {
		p.logger.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"event_type": msg.EventType,
		}).Error("Outbox message dead-lettered")
	}
}

func (p *OutboxPublisher) backoff(retryCount int) {
	if len(p.cfg.RetryDelays) == 0 {
		return
	}
	idx := retryCount
	if idx >= len(p.cfg.RetryDelays) {
		idx = len(p.cfg.RetryDelays) - 1
	}
	select {
	case <-time.After(p.cfg.RetryDelays[idx]):
	case <-p.stopCh:
	}
}

func (p *OutboxPublisher) isShuttingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuttingDown
}

// Stop halts polling and waits up to grace for in-flight deliveries to drain.
func (p *OutboxPublisher) Stop(grace time.Duration) {
	p.mu.Lock()
	if p.shuttingDown || !p.started {
		p.mu.Unlock()
		return
	}
	p.shuttingDown = true
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.Info("Outbox publisher stopped")
	case <-time.After(grace):
		p.logger.Warn("Outbox publisher stop timed out, abandoning in-flight deliveries")
	}
}
