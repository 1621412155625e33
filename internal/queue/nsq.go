package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

const touchInterval = 30 * time.Second

// nsqLogger routes go-nsq's log lines into logrus.
type nsqLogger struct {
	log *logger.Logger
}

func (l nsqLogger) Output(_ int, s string) error {
	switch {
	case strings.HasPrefix(s, "ERR"):
		l.log.Error(s)
	case strings.HasPrefix(s, "WRN"):
		l.log.Warn(s)
	default:
		l.log.Debug(s)
	}
	return nil
}

func newNSQConfig(cfg *config.QueueConfig) *nsq.Config {
	nc := nsq.NewConfig()
	if cfg.MaxAttempts > 0 {
		nc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Workers > 0 {
		nc.MaxInFlight = cfg.Workers
	}
	return nc
}

// NSQDispatcher publishes tasks to an nsqd topic.
type NSQDispatcher struct {
	producer *nsq.Producer
	topic    string
}

func NewNSQDispatcher(cfg *config.QueueConfig) (*NSQDispatcher, error) {
	producer, err := nsq.NewProducer(cfg.NSQDAddr, newNSQConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq producer: %w", err)
	}
	producer.SetLogger(nsqLogger{log: logger.GetDefault().WithField(logger.FieldComponent, "nsq_producer")}, nsq.LogLevelWarning)
	return &NSQDispatcher{producer: producer, topic: cfg.Topic}, nil
}

// Ping checks the nsqd connection.
func (d *NSQDispatcher) Ping() error {
	return d.producer.Ping()
}

func (d *NSQDispatcher) Dispatch(ctx context.Context, task domain.IngestTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := d.producer.Publish(d.topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", d.topic, err)
	}
	logger.CtxDebug(ctx, "Published job %s to %s", task.JobID, d.topic)
	return nil
}

func (d *NSQDispatcher) Close() {
	d.producer.Stop()
}

// NSQConsumer feeds tasks from an nsq channel into a Handler.
type NSQConsumer struct {
	consumer *nsq.Consumer
	handler  Handler
	base     context.Context
	cfg      *config.QueueConfig
}

func NewNSQConsumer(ctx context.Context, cfg *config.QueueConfig, handler Handler) (*NSQConsumer, error) {
	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, newNSQConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{log: logger.GetDefault().WithField(logger.FieldComponent, "nsq_consumer")}, nsq.LogLevelWarning)

	c := &NSQConsumer{consumer: consumer, handler: handler, base: ctx, cfg: cfg}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	consumer.AddConcurrentHandlers(c, workers)
	return c, nil
}

// Connect attaches to nsqlookupd when configured, otherwise to nsqd directly.
func (c *NSQConsumer) Connect() error {
	if len(c.cfg.LookupdAddrs) > 0 {
		return c.consumer.ConnectToNSQLookupds(c.cfg.LookupdAddrs)
	}
	return c.consumer.ConnectToNSQD(c.cfg.NSQDAddr)
}

// Stop drains in-flight messages and blocks until the consumer has stopped.
func (c *NSQConsumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}

// HandleMessage runs one task. Malformed bodies are dropped and task errors
// are not requeued, since the handler has already failed the job.
func (c *NSQConsumer) HandleMessage(m *nsq.Message) error {
	var task domain.IngestTask
	if err := json.Unmarshal(m.Body, &task); err != nil || task.JobID == "" {
		logger.Warn("Dropping malformed task message %s: %v", string(m.ID[:]), err)
		return nil
	}

	ctx := logger.SetJobID(c.base, task.JobID)
	ctx = logger.WithField(ctx, "attempt", m.Attempts)

	done := make(chan struct{})
	defer close(done)
	if m.Delegate != nil {
		go keepAlive(m, done)
	}

	if err := c.handler(ctx, task); err != nil {
		logger.CtxWarn(ctx, "Task finished with error: %v", err)
	}
	return nil
}

// keepAlive touches m until done so long ingestions outlive msg_timeout.
func keepAlive(m *nsq.Message, done <-chan struct{}) {
	ticker := time.NewTicker(touchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Touch()
		}
	}
}
