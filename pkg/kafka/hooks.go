package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "MarketCore/pkg/logger"
)

// Delivery is one fetched message as seen by hooks.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
	Time      time.Time
	Attempt   int
}

func newDelivery(km kafka.Message) Delivery {
	return Delivery{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       km.Key,
		Value:     km.Value,
		Headers:   km.Headers,
		Time:      km.Time,
	}
}

// Header returns the first header value named key.
func (d Delivery) Header(key string) string {
	for _, h := range d.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// ConsumerHook runs around every handler attempt. An error from Before skips
// the attempt and counts as a handler failure.
type ConsumerHook interface {
	Before(ctx context.Context, d Delivery) (context.Context, error)
	After(ctx context.Context, d Delivery, err error)
}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	BeforeFunc func(context.Context, Delivery) (context.Context, error)
	AfterFunc  func(context.Context, Delivery, error)
}

func (h HookFuncs) Before(ctx context.Context, d Delivery) (context.Context, error) {
	if h.BeforeFunc == nil {
		return ctx, nil
	}
	return h.BeforeFunc(ctx, d)
}

func (h HookFuncs) After(ctx context.Context, d Delivery, err error) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, d, err)
	}
}

// HookError wraps a failure raised inside a hook.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs Before in order and After in reverse. A panicking hook is
// turned into a HookError instead of taking the worker down.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	c := &HookChain{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

func (c *HookChain) Before(ctx context.Context, d Delivery) (out context.Context, err error) {
	out = ctx
	for _, h := range c.hooks {
		next, herr := safeBefore(h, out, d)
		if herr != nil {
			return out, herr
		}
		out = next
	}
	return out, nil
}

func (c *HookChain) After(ctx context.Context, d Delivery, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		safeAfter(c.hooks[i], ctx, d, err)
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, d Delivery) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.Before(ctx, d)
}

func safeAfter(h ConsumerHook, ctx context.Context, d Delivery, err error) {
	defer func() { _ = recover() }()
	h.After(ctx, d, err)
}

type ctxKey string

const ctxTraceID ctxKey = "kafka_trace_id"

// TraceID returns the trace id a TraceHook stored in ctx.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

// TraceHook copies the trace_id header into the handler context.
func TraceHook() ConsumerHook {
	return HookFuncs{BeforeFunc: func(ctx context.Context, d Delivery) (context.Context, error) {
		if id := d.Header("trace_id"); id != "" {
			return context.WithValue(ctx, ctxTraceID, id), nil
		}
		return ctx, nil
	}}
}

// LoggingHook logs failed attempts at warn level.
func LoggingHook(l *applogger.Logger) ConsumerHook {
	return HookFuncs{AfterFunc: func(ctx context.Context, d Delivery, err error) {
		if err == nil {
			return
		}
		l.Warn("kafka handler attempt failed",
			applogger.String("topic", d.Topic),
			applogger.Int("partition", d.Partition),
			applogger.Int64("offset", d.Offset),
			applogger.Int("attempt", d.Attempt),
			applogger.String("trace_id", TraceID(ctx)),
			applogger.Error(err),
		)
	}}
}
