package outbox

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaProducer lazily opens one writer per topic. Keys are hashed, and the
// outbox keys every event by user id, so a user's events keep their order.
type KafkaProducer struct {
	addr   net.Addr
	logger *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers. Writer errors are
// reported through logger.
func NewKafkaProducer(brokers []string, logger *zap.Logger) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{
		addr:    kafka.TCP(brokers...),
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes msgs to topic and waits for all in-sync replicas.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	errLog := p.logger.With(zap.String("topic", topic)).Sugar()
	w := &kafka.Writer{
		Addr:         p.addr,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger:  kafka.LoggerFunc(errLog.Errorf),
	}
	p.writers[topic] = w
	return w
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := make([]error, 0, len(p.writers))
	for topic, w := range p.writers {
		errs = append(errs, w.Close())
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
