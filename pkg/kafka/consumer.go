package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	applogger "MarketCore/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Permanent marks err as not worth retrying. The message goes straight to the DLQ.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and fans messages out to a worker pool.
// Every partition is pinned to one worker so per-partition order is kept.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *applogger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	hook      ConsumerHook
	metrics   *consumerMetrics

	shards     []chan kafka.Message
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	fetchWG    sync.WaitGroup
	workWG     sync.WaitGroup
	started    bool
	stopOnce   sync.Once
}

// NewConsumer creates a consumer. Brokers are required.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	c := newConsumer(cfg)
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			StartOffset: cfg.StartOffset,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = applogger.Nop()
	}
	return &Consumer{
		cfg:      cfg,
		log:      log.With(applogger.String("component", "kafka_consumer")),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NewHookChain(),
		metrics:  newConsumerMetrics(cfg.Registerer),
	}
}

// RegisterHandler registers h for its topic. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// WithConsumerHook sets the hook run around each handler attempt.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one fetch loop per topic plus the workers. It returns at once;
// the loops run until Stop or until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.started {
		return errors.New("kafka consumer: already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel, c.workCancel = cancel, workCancel

	c.shards = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.shards {
		c.shards[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.work(workCtx, c.shards[i])
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(fetchCtx, topic, r)
	}
	c.log.Info("kafka consumer started",
		applogger.Int("workers", c.cfg.Workers),
		applogger.Int("topics", len(c.handlers)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop cancels the fetch loops and lets the workers drain what was already
// fetched. If ctx expires first, in-flight retries are abandoned uncommitted.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if !c.started {
			return
		}
		c.cancel()
		c.fetchWG.Wait()
		for _, ch := range c.shards {
			close(ch)
		}
		err = waitGroup(ctx, &c.workWG)
		c.workCancel()
		if err != nil {
			c.workWG.Wait()
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Error("close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Error("close dlq writer", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return err
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer workers: %w", ctx.Err())
	}
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	defer c.fetchWG.Done()
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.cfg.BackoffMin
	retry.MaxInterval = c.cfg.BackoffMax
	retry.MaxElapsedTime = 0

	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(retry.NextBackOff()):
				continue
			case <-ctx.Done():
				return
			}
		}
		retry.Reset()
		if km.Topic == "" {
			km.Topic = topic
		}

		shard := c.shards[km.Partition%len(c.shards)]
		select {
		case shard <- km:
			c.metrics.depth.WithLabelValues(topic).Set(float64(len(shard)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, in <-chan kafka.Message) {
	defer c.workWG.Done()
	for km := range in {
		c.process(ctx, km)
	}
}

func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	start := time.Now()
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	d := newDelivery(km)

	err := c.handleWithRetry(ctx, h, d)
	result := "ok"
	commit := true
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// shutting down mid-retry; the message is redelivered after restart
			return
		case c.dlq != nil:
			result = "dlq"
			if derr := c.deadLetter(ctx, km, err); derr != nil {
				result, commit = "failed", false
				c.log.Error("write dead letter", applogger.String("topic", km.Topic), applogger.Error(derr))
			}
		default:
			result, commit = "failed", false
		}
		c.log.Error("message handling failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.String("result", result),
			applogger.Error(err),
		)
	}
	if commit {
		c.commit(ctx, km)
	}
	c.metrics.messages.WithLabelValues(km.Topic, result).Inc()
	c.metrics.latency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(ctx context.Context, h MessageHandler, d Delivery) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BackoffMin
	policy.MaxInterval = c.cfg.BackoffMax
	policy.MaxElapsedTime = 0

	op := func() error {
		d.Attempt++
		hctx, err := c.hook.Before(ctx, d)
		if hctx == nil {
			hctx = ctx
		}
		if err == nil {
			err = c.safeHandle(hctx, h, d.Value)
		}
		c.hook.After(hctx, d, err)
		return err
	}
	notify := func(error, time.Duration) {
		c.metrics.retries.WithLabelValues(d.Topic).Inc()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.RetryMax)), ctx)
	return backoff.RetryNotify(op, b, notify)
}

func (c *Consumer) safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, km kafka.Message, cause error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now().UTC(),
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
}

func (c *Consumer) commit(ctx context.Context, km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	op := func() error {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return r.CommitMessages(cctx, km)
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 2)
	if err := backoff.Retry(op, b); err != nil {
		c.log.Error("commit offset", applogger.String("topic", km.Topic), applogger.Int64("offset", km.Offset), applogger.Error(err))
	}
}

type consumerMetrics struct {
	depth    *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
	messages *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	m := &consumerMetrics{
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketcore_kafka_consumer_queue_depth",
			Help: "Messages waiting in the worker shard after the last enqueue",
		}, []string{"topic"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketcore_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcore_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcore_kafka_consumer_retries_total",
			Help: "Handler retries",
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.depth, m.latency, m.messages, m.retries)
	}
	return m
}
