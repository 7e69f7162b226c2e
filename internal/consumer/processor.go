// Package consumer applies upstream activity events from Kafka to the XP ledger.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler applies one decoded message. A returned error, once retries are
// spent, stops the processor without committing the record.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a registry-framed activity record with its headers unpacked.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           string
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry retries a failing handler up to attempts extra times, starting
// at initial and doubling.
func WithRetry(attempts uint64, initial time.Duration) Option {
	return func(p *Processor) {
		p.retries = attempts
		if initial > 0 {
			p.retryInitial = initial
		}
	}
}

// Processor reads records one at a time, hands them to a Handler and commits
// what was applied. Undecodable records are committed and counted. A record
// the handler cannot apply ends Run, so the partition never advances past it;
// the group redelivers it from the last committed offset on restart.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       *zap.Logger
	retries      uint64
	retryInitial time.Duration
}

// NewProcessor builds a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       zap.NewNop(),
		retryInitial: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrNotApplied wraps the handler error that stopped Run.
var ErrNotApplied = errors.New("activity event not applied")

// Run blocks until ctx is cancelled, the reader reports cancellation or a
// record cannot be applied.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		raw, err := p.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			p.logger.Warn("kafka fetch failed", zap.Error(err))
			continue
		}
		if err := p.process(ctx, raw); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (p *Processor) process(ctx context.Context, raw kafka.Message) error {
	msg, err := decode(raw)
	if err != nil {
		p.logger.Warn("undecodable record committed",
			zap.String("topic", raw.Topic),
			zap.Int("partition", raw.Partition),
			zap.Int64("offset", raw.Offset),
			zap.Error(err),
		)
		recordOutcome(raw.Topic, "", outcomeUndecodable)
		p.commit(ctx, raw)
		return nil
	}

	if err := p.apply(ctx, msg); err != nil {
		p.logger.Error("activity event not applied",
			zap.String("event_type", msg.EventType),
			zap.String("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		recordOutcome(msg.Topic, msg.EventType, outcomeFailed)
		return fmt.Errorf("%w: %s partition %d offset %d: %w", ErrNotApplied, msg.Topic, msg.Partition, msg.Offset, err)
	}

	if p.commit(ctx, raw) {
		recordOutcome(msg.Topic, msg.EventType, outcomeApplied)
		recordLastApplied(msg)
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, msg Message) error {
	if p.retries == 0 {
		return p.handler.Handle(ctx, msg)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(p.retryInitial)), p.retries),
		ctx,
	)
	return backoff.RetryNotify(
		func() error { return p.handler.Handle(ctx, msg) },
		policy,
		func(err error, wait time.Duration) {
			p.logger.Debug("retrying activity event", zap.String("event_type", msg.EventType), zap.Duration("wait", wait), zap.Error(err))
		},
	)
}

func (p *Processor) commit(ctx context.Context, raw kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, raw); err != nil {
		p.logger.Warn("kafka commit failed", zap.Int64("offset", raw.Offset), zap.Error(err))
		return false
	}
	return true
}

// decode unpacks the 5-byte registry frame and the event headers.
func decode(raw kafka.Message) (Message, error) {
	if len(raw.Value) < 5 || raw.Value[0] != 0 {
		return Message{}, fmt.Errorf("not a registry frame (%d bytes)", len(raw.Value))
	}
	msg := Message{
		Topic:     raw.Topic,
		Partition: raw.Partition,
		Offset:    raw.Offset,
		Timestamp: raw.Time,
		Key:       string(raw.Key),
		SchemaID:  int(binary.BigEndian.Uint32(raw.Value[1:5])),
		Payload:   json.RawMessage(append([]byte(nil), raw.Value[5:]...)),
	}
	for _, h := range raw.Headers {
		switch h.Key {
		case "event_type":
			msg.EventType = string(h.Value)
		case "schema_subject":
			msg.SchemaSubject = string(h.Value)
		}
	}
	if msg.EventType == "" {
		return Message{}, errors.New("missing event_type header")
	}
	return msg, nil
}
