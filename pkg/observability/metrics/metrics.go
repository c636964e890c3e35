// Package metrics implements lock-light in-process metrics rendered in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MetricType is the Prometheus TYPE of a metric.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Metric is implemented by every metric kind.
type Metric interface {
	Name() string
	Type() MetricType
	// Describe renders the metric with its HELP and TYPE lines.
	Describe() string
}

// Counter only goes up. Negative increments are ignored.
type Counter interface {
	Metric
	Inc()
	Add(float64)
	Get() float64
}

// Gauge can go up and down.
type Gauge interface {
	Metric
	Set(float64)
	Inc()
	Dec()
	Get() float64
}

// Histogram counts observations into cumulative buckets.
type Histogram interface {
	Metric
	Observe(float64)
	Count() uint64
}

// CounterVec is a family of counters partitioned by labels.
type CounterVec interface {
	Metric
	With(labels map[string]string) Counter
}

type desc struct {
	name, help string
	typ        MetricType
}

func (d desc) Name() string     { return d.name }
func (d desc) Type() MetricType { return d.typ }

func (d desc) header(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, d.typ)
}

// atomicFloat stores a float64 in a uint64 and updates it with CAS.
type atomicFloat struct{ bits uint64 }

func (f *atomicFloat) add(v float64) {
	for {
		old := atomic.LoadUint64(&f.bits)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&f.bits, old, next) {
			return
		}
	}
}

func (f *atomicFloat) set(v float64) { atomic.StoreUint64(&f.bits, math.Float64bits(v)) }
func (f *atomicFloat) get() float64  { return math.Float64frombits(atomic.LoadUint64(&f.bits)) }

type counter struct {
	desc
	val atomicFloat
}

// NewCounter creates a counter.
func NewCounter(name, help string) Counter {
	return &counter{desc: desc{name: name, help: help, typ: TypeCounter}}
}

func (c *counter) Inc() { c.val.add(1) }

func (c *counter) Add(v float64) {
	if v > 0 {
		c.val.add(v)
	}
}

func (c *counter) Get() float64 { return c.val.get() }

func (c *counter) Describe() string {
	var sb strings.Builder
	c.header(&sb)
	fmt.Fprintf(&sb, "%s %.6f\n", c.name, c.Get())
	return sb.String()
}

type gauge struct {
	desc
	val atomicFloat
}

// NewGauge creates a gauge.
func NewGauge(name, help string) Gauge {
	return &gauge{desc: desc{name: name, help: help, typ: TypeGauge}}
}

func (g *gauge) Set(v float64) { g.val.set(v) }
func (g *gauge) Inc()          { g.val.add(1) }
func (g *gauge) Dec()          { g.val.add(-1) }
func (g *gauge) Get() float64  { return g.val.get() }

func (g *gauge) Describe() string {
	var sb strings.Builder
	g.header(&sb)
	fmt.Fprintf(&sb, "%s %.6f\n", g.name, g.Get())
	return sb.String()
}

// DefaultBuckets suit request latencies in seconds, LLM calls included.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type histogram struct {
	desc
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// NewHistogram creates a histogram. Nil buckets select DefaultBuckets.
func NewHistogram(name, help string, buckets []float64) Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &histogram{
		desc:    desc{name: name, help: help, typ: TypeHistogram},
		buckets: b,
		counts:  make([]uint64, len(b)),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, upper := range h.buckets {
		if v <= upper {
			h.counts[i]++
		}
	}
}

func (h *histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *histogram) Describe() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sb strings.Builder
	h.header(&sb)
	for i, upper := range h.buckets {
		fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", h.name, upper, h.counts[i])
	}
	fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(&sb, "%s_sum %.6f\n%s_count %d\n", h.name, h.sum, h.name, h.count)
	return sb.String()
}

type counterVec struct {
	desc
	mu       sync.RWMutex
	counters map[string]*counter
}

// NewCounterVec creates a labelled counter family.
func NewCounterVec(name, help string) CounterVec {
	return &counterVec{
		desc:     desc{name: name, help: help, typ: TypeCounter},
		counters: make(map[string]*counter),
	}
}

func (v *counterVec) With(labels map[string]string) Counter {
	key := seriesName(v.name, labels)

	v.mu.RLock()
	c, ok := v.counters[key]
	v.mu.RUnlock()
	if ok {
		return c
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok = v.counters[key]; !ok {
		c = &counter{desc: desc{name: key, help: v.help, typ: TypeCounter}}
		v.counters[key] = c
	}
	return c
}

func (v *counterVec) Describe() string {
	v.mu.RLock()
	keys := make([]string, 0, len(v.counters))
	for k := range v.counters {
		keys = append(keys, k)
	}
	v.mu.RUnlock()
	sort.Strings(keys)

	var sb strings.Builder
	v.header(&sb)
	for _, k := range keys {
		v.mu.RLock()
		c := v.counters[k]
		v.mu.RUnlock()
		fmt.Fprintf(&sb, "%s %.6f\n", k, c.Get())
	}
	return sb.String()
}

// seriesName renders name{k="v",...} with labels sorted by key.
func seriesName(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}
