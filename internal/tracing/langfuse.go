package tracing

import (
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"marketobs/internal/config"
)

// LangfuseTracer buffers observation events and ships them in one ingestion
// batch per cycle. Flush failures are swallowed: tracing must never affect
// pipeline behavior.
type LangfuseTracer struct {
	client *resty.Client

	mu     sync.Mutex
	events []event
}

type event struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Body      map[string]any `json:"body"`
}

type ingestionBatch struct {
	Batch []event `json:"batch"`
}

// NewTracer returns a Langfuse tracer when real credentials are configured
// and the no-op tracer otherwise.
func NewTracer(cfg config.Langfuse) Tracer {
	if !hasCredentials(cfg) {
		return NoopTracer{}
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(5 * time.Second).
		SetBasicAuth(cfg.PublicKey, cfg.SecretKey)
	return &LangfuseTracer{client: client}
}

func hasCredentials(cfg config.Langfuse) bool {
	badPublic := map[string]bool{"": true, "mock": true, "demo": true, "your_langfuse_public_key": true}
	badSecret := map[string]bool{"": true, "mock": true, "demo": true, "your_langfuse_secret_key": true}
	return !badPublic[strings.TrimSpace(cfg.PublicKey)] && !badSecret[strings.TrimSpace(cfg.SecretKey)]
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (t *LangfuseTracer) append(evtType string, body map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event{
		ID:        uuid.NewString(),
		Timestamp: nowISO(),
		Type:      evtType,
		Body:      body,
	})
}

func (t *LangfuseTracer) StartTrace(name string, input any) Span {
	traceID := uuid.NewString()
	t.append("trace-create", map[string]any{
		"id":        traceID,
		"name":      name,
		"input":     input,
		"timestamp": nowISO(),
	})
	return &langfuseSpan{tracer: t, traceID: traceID}
}

// Flush posts the buffered batch and drops it regardless of outcome.
func (t *LangfuseTracer) Flush() {
	t.mu.Lock()
	batch := t.events
	t.events = nil
	t.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	_, _ = t.client.R().
		SetBody(ingestionBatch{Batch: batch}).
		Post("/api/public/ingestion")
}

type langfuseSpan struct {
	tracer  *LangfuseTracer
	traceID string
	id      string // empty for the trace root
}

func observationType(kind string) string {
	if kind == KindGeneration {
		return "GENERATION"
	}
	return "SPAN"
}

func (s *langfuseSpan) StartSpan(name, kind string, input any) Span {
	id := uuid.NewString()
	body := map[string]any{
		"id":        id,
		"traceId":   s.traceID,
		"type":      observationType(kind),
		"name":      name,
		"startTime": nowISO(),
		"input":     input,
	}
	if s.id != "" {
		body["parentObservationId"] = s.id
	}
	s.tracer.append("observation-create", body)
	return &langfuseSpan{tracer: s.tracer, traceID: s.traceID, id: id}
}

func (s *langfuseSpan) Update(output any) {
	if s.id == "" {
		s.tracer.append("trace-create", map[string]any{
			"id":     s.traceID,
			"output": output,
		})
		return
	}
	s.tracer.append("observation-update", map[string]any{
		"id":      s.id,
		"traceId": s.traceID,
		"output":  output,
	})
}

func (s *langfuseSpan) SetMetadata(md map[string]any) {
	if s.id == "" {
		return
	}
	s.tracer.append("observation-update", map[string]any{
		"id":       s.id,
		"traceId":  s.traceID,
		"metadata": md,
	})
}

func (s *langfuseSpan) End() {
	if s.id == "" {
		return
	}
	s.tracer.append("observation-update", map[string]any{
		"id":      s.id,
		"traceId": s.traceID,
		"endTime": nowISO(),
	})
}
