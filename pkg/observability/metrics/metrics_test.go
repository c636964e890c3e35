package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	c := NewCounter("docs_total", "Documents.")
	c.Inc()
	c.Add(2.5)
	c.Add(-10)

	assert.Equal(t, 3.5, c.Get())
	assert.Equal(t, TypeCounter, c.Type())
	assert.Contains(t, c.Describe(), "# TYPE docs_total counter")
	assert.Contains(t, c.Describe(), "docs_total 3.500000")
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("hits_total", "Hits.")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5000.0, c.Get())
}

func TestGauge(t *testing.T) {
	g := NewGauge("inflight", "In flight.")
	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, 1.0, g.Get())

	g.Set(7)
	assert.Equal(t, 7.0, g.Get())
	assert.Contains(t, g.Describe(), "# TYPE inflight gauge")
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("latency_seconds", "Latency.", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(3)

	assert.Equal(t, uint64(3), h.Count())
	out := h.Describe()
	assert.Contains(t, out, `latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `latency_seconds_bucket{le="1"} 2`)
	assert.Contains(t, out, `latency_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "latency_seconds_sum 3.550000")
	assert.Contains(t, out, "latency_seconds_count 3")
}

func TestCounterVec(t *testing.T) {
	v := NewCounterVec("chat_total", "Chats.")
	v.With(map[string]string{"route": "qna"}).Inc()
	v.With(map[string]string{"route": "qna"}).Inc()
	v.With(map[string]string{"route": "summarize", "dataset": "cases"}).Inc()

	assert.Equal(t, 2.0, v.With(map[string]string{"route": "qna"}).Get())
	out := v.Describe()
	assert.Contains(t, out, `chat_total{route="qna"} 2.000000`)
	assert.Contains(t, out, `chat_total{dataset="cases",route="summarize"} 1.000000`)
}

func TestRegistryExport(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewCounter("b_total", "B."), NewGauge("a_gauge", "A."))

	out := reg.Export()
	assert.Less(t, strings.Index(out, "a_gauge"), strings.Index(out, "b_total"))

	reg.Register(NewCounter("b_total", "Replaced."))
	assert.Contains(t, reg.Export(), "# HELP b_total Replaced.")
}
