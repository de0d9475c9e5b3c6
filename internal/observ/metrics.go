package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Metrics is the sink updated by the worker. Passed explicitly so the
// pipeline carries no hidden global state.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	IncCounterBy(name string, labels map[string]string, value float64)
	SetGauge(name string, value float64, labels map[string]string)
	Observe(name string, value float64, labels map[string]string)
}

// Registry is an in-memory Metrics implementation with a JSON dump handler.
type Registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64
	gauges   map[string]map[string]float64
	hist     map[string]map[string][]float64
}

func NewRegistry() *Registry {
	return &Registry{
		counters: map[string]map[string]int64{},
		gauges:   map[string]map[string]float64{},
		hist:     map[string]map[string][]float64{},
	}
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func (r *Registry) IncCounter(name string, labels map[string]string) {
	r.IncCounterBy(name, labels, 1.0)
}

func (r *Registry) IncCounterBy(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.counters[name]
	if !ok {
		m = map[string]int64{}
		r.counters[name] = m
	}
	m[canonLabels(labels)] += int64(value)
}

func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.gauges[name]
	if !ok {
		m = map[string]float64{}
		r.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func (r *Registry) Observe(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.hist[name]
	if !ok {
		m = map[string][]float64{}
		r.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// CounterValue returns the current value of a counter, mainly for tests.
func (r *Registry) CounterValue(name string, labels map[string]string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name][canonLabels(labels)]
}

// Basic JSON dump for quick checks (not Prometheus format on purpose)
func (r *Registry) Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: r.counters, Gauges: r.gauges, Hist: r.hist})
	})
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) IncCounter(string, map[string]string)            {}
func (NopMetrics) IncCounterBy(string, map[string]string, float64) {}
func (NopMetrics) SetGauge(string, float64, map[string]string)     {}
func (NopMetrics) Observe(string, float64, map[string]string)      {}
