package logger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of summaries. pkg/kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectorConfig struct {
	Interval   time.Duration // flush period
	MaxEntries int           // distinct entries that force an early flush
	Topic      string
	Service    string // message key, so one service's summaries stay ordered
	Publisher  Publisher
}

// Summary counts identical error lines seen during one flush window.
type Summary struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`

	seq uint64
}

// Collector deduplicates error lines and publishes them in batches, so a
// failing dependency produces one message per window instead of one per line.
type Collector struct {
	cfg     CollectorConfig
	mu      sync.Mutex
	entries map[string]*Summary
	flushes chan []Summary
	stop    chan struct{}
	closed  bool
	seq     uint64
	wg      sync.WaitGroup
	once    sync.Once
}

func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	c := &Collector{
		cfg:     cfg,
		entries: make(map[string]*Summary),
		flushes: make(chan []Summary, 4),
		stop:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.tick()
	go c.ship()
	return c
}

// Add records one line. It never blocks on the publisher.
func (c *Collector) Add(level, msg string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := summaryKey(level, msg, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.seq++
		c.entries[key] = &Summary{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now, seq: c.seq,
		}
	}
	if len(c.entries) < c.cfg.MaxEntries {
		return
	}
	// when the shipper is behind, keep aggregating until the next tick
	if len(c.flushes) < cap(c.flushes) {
		c.flushes <- c.drainLocked()
	}
}

// Pending returns the number of distinct entries not yet flushed.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close flushes what is pending and waits for the shipper.
func (c *Collector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *Collector) drainLocked() []Summary {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]Summary, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	c.entries = make(map[string]*Summary)
	return out
}

func (c *Collector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			batch := c.drainLocked()
			c.mu.Unlock()
			if batch != nil {
				c.flushes <- batch
			}
		case <-c.stop:
			c.mu.Lock()
			batch := c.drainLocked()
			c.closed = true
			c.mu.Unlock()
			if batch != nil {
				c.flushes <- batch
			}
			close(c.flushes)
			return
		}
	}
}

func (c *Collector) ship() {
	defer c.wg.Done()
	for batch := range c.flushes {
		if c.cfg.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte(c.cfg.Service), batch)
		cancel()
	}
}

func summaryKey(level, msg string, fields map[string]interface{}, caller string) string {
	// encoding/json sorts map keys, so equal field sets give equal keys
	b, _ := json.Marshal(fields)
	return level + "\x00" + msg + "\x00" + caller + "\x00" + string(b)
}
