package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"intranet/internal/domain/notification"
	"intranet/internal/pkg/validator"
)

const (
	ResultCreated = "created"
	ResultInvalid = "invalid"
	ResultFailed  = "failed"

	maxRetryTime     = 30 * time.Second
	redeliverWait    = time.Second
	maxRedeliverWait = time.Minute
)

var ErrNoRecipients = errors.New("event has no recipients")

// idNamespace scopes notification ids derived from message coordinates.
var idNamespace = uuid.MustParse("5b1d3c8e-2f4a-4e6b-9a7d-0c2e8f61b4a9")

// notificationID is stable for one message and recipient, so a redelivered
// message maps onto the rows it already produced.
func notificationID(m kafka.Message, userID int64) string {
	key := fmt.Sprintf("%s/%d/%d/%d", m.Topic, m.Partition, m.Offset, userID)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Event is a domain event published by another intranet service.
type Event struct {
	UserID    int64                  `json:"userId,omitempty"`
	UserIDs   []int64                `json:"userIds,omitempty"`
	Type      string                 `json:"type" validate:"required,max=64"`
	Title     string                 `json:"title" validate:"required,max=255"`
	Message   string                 `json:"message"`
	Priority  string                 `json:"priority"`
	Metadata  *notification.Metadata `json:"metadata,omitempty"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
}

func (e Event) recipients() []int64 {
	seen := make(map[int64]struct{}, len(e.UserIDs)+1)
	var out []int64
	for _, id := range append([]int64{e.UserID}, e.UserIDs...) {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (e Event) input() notification.CreateInput {
	return notification.CreateInput{
		Type:      notification.Type(e.Type),
		Title:     e.Title,
		Message:   e.Message,
		Priority:  notification.ParsePriority(e.Priority),
		Metadata:  e.Metadata,
		ExpiresAt: e.ExpiresAt,
	}
}

// Creator stores and pushes a notification.
type Creator interface {
	Create(ctx context.Context, userID int64, in notification.CreateInput) (*notification.Notification, error)
}

// Recorder counts consumed messages by result.
type Recorder interface {
	MessageIngested(result string)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer turns domain events into notifications. Messages are committed once
// handled, or once they are known to be unprocessable. A message that keeps failing
// holds its partition and is retried until it goes through or ctx is done.
type Consumer struct {
	reader   messageReader
	creator  Creator
	recorder Recorder
	log      *zap.Logger

	retryTime     time.Duration
	redeliverWait time.Duration
}

func NewConsumer(cfg Config, creator Creator, recorder Recorder, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newConsumer(r, creator, recorder, log)
}

func newConsumer(r messageReader, creator Creator, recorder Recorder, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		reader:        r,
		creator:       creator,
		recorder:      recorder,
		log:           log.With(zap.String("component", "ingest")),
		retryTime:     maxRetryTime,
		redeliverWait: redeliverWait,
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.process(ctx, m) {
			return nil
		}
		if ctx.Err() != nil {
			// not committed, so the message is redelivered
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// process handles m until it no longer fails. It returns false when ctx ended first.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.redeliverWait
	b.MaxInterval = maxRedeliverWait
	b.MaxElapsedTime = 0

	for {
		result := c.handle(ctx, m)
		if c.recorder != nil {
			c.recorder.MessageIngested(result)
		}
		if result != ResultFailed {
			return true
		}

		wait := b.NextBackOff()
		c.log.Warn("message not processed, retrying",
			zap.Int64("offset", m.Offset), zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) string {
	var ev Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Warn("skipping undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return ResultInvalid
	}

	if errs := validator.Validate(ev); errs != nil {
		c.log.Warn("skipping invalid event", zap.Int64("offset", m.Offset), zap.Any("fields", errs))
		return ResultInvalid
	}

	users := ev.recipients()
	if len(users) == 0 {
		c.log.Warn("skipping event", zap.Int64("offset", m.Offset), zap.Error(ErrNoRecipients))
		return ResultInvalid
	}

	in := ev.input()
	for _, userID := range users {
		in.ID = notificationID(m, userID)
		if err := c.create(ctx, userID, in); err != nil {
			if isValidationError(err) {
				c.log.Warn("skipping invalid event",
					zap.Int64("offset", m.Offset), zap.String("type", ev.Type), zap.Error(err))
				return ResultInvalid
			}
			c.log.Error("create notification failed",
				zap.Int64("offset", m.Offset), zap.Int64("user_id", userID), zap.Error(err))
			return ResultFailed
		}
	}
	return ResultCreated
}

// create retries storage failures; validation errors are permanent.
func (c *Consumer) create(ctx context.Context, userID int64, in notification.CreateInput) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retryTime

	op := func() error {
		_, err := c.creator.Create(ctx, userID, in)
		if err == nil || errors.Is(err, notification.ErrDuplicateNotification) {
			return nil
		}
		if isValidationError(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("user %d: %w", userID, err)
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func isValidationError(err error) bool {
	return errors.Is(err, notification.ErrInvalidType) ||
		errors.Is(err, notification.ErrEmptyTitle) ||
		errors.Is(err, notification.ErrInvalidUser)
}
