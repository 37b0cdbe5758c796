package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	appctx "clientregistry/internal/core/context"
	"clientregistry/internal/domain/client"
	"clientregistry/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

const aggregateTypeClient = "client"

// OutboxMessage is a row of sys_outbox.
type OutboxMessage struct {
	ID            uuid.UUID    `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   int64        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// EventEnvelope is the JSON payload stored for every event.
type EventEnvelope struct {
	EventID    uuid.UUID      `json:"eventId"`
	Type       string         `json:"type"`
	ClientID   int64          `json:"clientId"`
	OccurredAt time.Time      `json:"occurredAt"`
	TraceID    string         `json:"traceId,omitempty"`
	OperatorID string         `json:"operatorId,omitempty"`
	Data       map[string]any `json:"data"`
}

// OutboxPublisher writes client events to sys_outbox in the caller's transaction.
type OutboxPublisher struct {
	txManager *TxManager
	now       func() time.Time
}

var _ client.EventPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, now: func() time.Time { return time.Now().UTC() }}
}

// Publish must be called inside a transaction so the event commits or rolls
// back with the change it describes.
func (p *OutboxPublisher) Publish(ctx context.Context, event client.Event) error {
	t := p.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	now := p.now()
	envelope := EventEnvelope{
		EventID:    uuid.New(),
		Type:       event.Type,
		ClientID:   event.ClientID.Int64(),
		OccurredAt: now,
		TraceID:    appctx.GetTraceID(ctx),
		OperatorID: appctx.GetUserID(ctx),
		Data:       event.Payload,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = t.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, envelope.EventID, aggregateTypeClient, event.ClientID.Int64(), event.Type, payload, OutboxStatusPending, now)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers one message to a sink.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// RelayObserver receives delivery outcomes, e.g. for metrics.
type RelayObserver interface {
	OutboxDelivered(eventType string)
	OutboxFailed(eventType string)
}

// RelayConfig configures OutboxRelay.
type RelayConfig struct {
	BatchSize  int
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRelayConfig returns the relay defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{BatchSize: 100, MaxRetries: 5, Backoff: time.Minute}
}

// OutboxRelay reads pending messages and hands them to a handler. Several
// relays may run concurrently; rows are claimed with FOR UPDATE SKIP LOCKED.
type OutboxRelay struct {
	txManager *TxManager
	handler   OutboxHandler
	observer  RelayObserver
	cfg       RelayConfig
}

// NewOutboxRelay creates a new outbox relay. observer may be nil.
func NewOutboxRelay(txManager *TxManager, handler OutboxHandler, observer RelayObserver, cfg RelayConfig) *OutboxRelay {
	def := DefaultRelayConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &OutboxRelay{txManager: txManager, handler: handler, observer: observer, cfg: cfg}
}

// ProcessBatch delivers one batch of due messages and returns how many were
// delivered. A failing message is rescheduled with linear backoff and marked
// failed after MaxRetries attempts.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.handler.Handle(ctx, msg); err != nil {
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID.String(),
					"event_type", msg.EventType,
					"retry_count", msg.RetryCount,
					"error", err,
				)
				if r.observer != nil {
					r.observer.OutboxFailed(msg.EventType)
				}
				if err := r.reschedule(ctx, q, msg, err); err != nil {
					return err
				}
				continue
			}

			if _, err := q.Exec(ctx, `
				UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3
			`, OutboxStatusPublished, time.Now().UTC(), msg.ID); err != nil {
				return fmt.Errorf("mark outbox message published: %w", err)
			}
			if r.observer != nil {
				r.observer.OutboxDelivered(msg.EventType)
			}
			delivered++
		}
		return nil
	})
	return delivered, err
}

func (r *OutboxRelay) reschedule(ctx context.Context, q Querier, msg *OutboxMessage, cause error) error {
	attempts := msg.RetryCount + 1
	status := OutboxStatusPending
	if attempts >= r.cfg.MaxRetries {
		status = OutboxStatusFailed
	}
	nextRetry := time.Now().UTC().Add(time.Duration(attempts) * r.cfg.Backoff)

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
		WHERE id = $5
	`, attempts, cause.Error(), nextRetry, status, msg.ID)
	if err != nil {
		return fmt.Errorf("reschedule outbox message: %w", err)
	}
	return nil
}

// MoveToDLQ moves failed messages to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, failed_at, failure_reason)
		SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, NOW(), last_error FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}

// PurgePublished deletes published messages older than retention.
func (r *OutboxRelay) PurgePublished(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox WHERE status = $1 AND published_at < $2
	`, OutboxStatusPublished, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge published outbox messages: %w", err)
	}
	return result.RowsAffected(), nil
}
