package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	pkgkafka "MarketCore/pkg/kafka"
	applogger "MarketCore/pkg/logger"
)

// BarSink accepts one bar for a symbol.
type BarSink interface {
	OnBar(ctx context.Context, symbol string, bar models.Bar, closed bool) (*models.AnalysisSnapshot, error)
}

// KafkaBarsHandler feeds bar messages from a topic into the analysis pipeline.
type KafkaBarsHandler struct {
	topic    string
	interval domrepo.Interval
	sink     BarSink
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewKafkaBarsHandler(topic string, interval domrepo.Interval, sink BarSink, metrics domrepo.Metrics, log *applogger.Logger) *KafkaBarsHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &KafkaBarsHandler{topic: topic, interval: interval, sink: sink, metrics: metrics, log: log}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// barMessage is the wire schema: {symbol, interval, t, o, h, l, c, v, closed}.
// t is unix seconds or milliseconds.
type barMessage struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	T        int64   `json:"t"`
	O        float64 `json:"o"`
	H        float64 `json:"h"`
	L        float64 `json:"l"`
	C        float64 `json:"c"`
	V        float64 `json:"v"`
	Closed   *bool   `json:"closed"`
}

// Handle decodes one message. Bars for another interval are ignored, and
// replayed bars that are not newer than the last close are acknowledged and dropped.
// Undecodable or invalid bars are returned as permanent errors so they skip retries.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m barMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode bar: %w", err))
	}
	if strings.TrimSpace(m.Symbol) == "" || m.T <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(fmt.Errorf("decode bar: missing symbol or time: %w", models.ErrMalformedBar))
	}
	if m.Interval != "" {
		if iv, err := domrepo.ParseInterval(m.Interval); err != nil || iv != h.interval {
			return nil
		}
	}

	ts := m.T
	if ts > 1e11 {
		ts /= 1000
	}
	bar := models.BarFromUnix(ts, m.O, m.H, m.L, m.C, m.V)
	closed := m.Closed == nil || *m.Closed
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Time).Seconds())

	_, err := h.sink.OnBar(ctx, m.Symbol, bar, closed)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrOutOfOrderBar):
		h.log.Debug("stale bar dropped", applogger.String("symbol", m.Symbol), applogger.Int64("t", ts))
		return nil
	case errors.Is(err, models.ErrMalformedBar), errors.Is(err, models.ErrUnknownSymbol):
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(err)
	default:
		h.metrics.RecordError("consumer_handle")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
