package usecase

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	pkgkafka "CandleFlow/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages and feeds the aggregation engine.
type KafkaTicksHandler struct {
	topic    string
	ingestor *TickIngestor
	metrics  domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, ingestor *TickIngestor, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, ingestor: ingestor, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, p, v}; p and v are decimal strings,
// but numeric payloads from older producers are tolerated.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string          `json:"symbol"`
		T      int64           `json:"t"`
		P      json.RawMessage `json:"p"`
		V      json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	raw := models.RawTick{
		Symbol:    m.Symbol,
		Timestamp: m.T,
		Price:     rawNumber(m.P),
		Volume:    rawNumber(m.V),
	}

	// E2E latency from event time to now (approx)
	ts := m.T
	if ts > 1e11 { // ms
		ts = ts / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(ts, 0)).Seconds())

	start := time.Now()
	if err := h.ingestor.Ingest(ctx, raw); err != nil {
		h.metrics.RecordError("consumer_ingest")
		return err
	}
	h.metrics.RecordLatency("consumer_handle_seconds", time.Since(start).Seconds())
	return nil
}

// rawNumber reads a JSON string or number field as its literal text.
func rawNumber(b json.RawMessage) string {
	if len(b) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
