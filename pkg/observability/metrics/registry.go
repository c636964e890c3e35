package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds metrics by name. Registering a name again replaces the
// previous metric.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// DefaultRegistry is the process-wide registry served on /metrics.
var DefaultRegistry = NewRegistry()

// Register adds metrics to the registry.
func (r *Registry) Register(ms ...Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range ms {
		r.metrics[m.Name()] = m
	}
}

// Export renders every metric, sorted by name.
func (r *Registry) Export() string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		r.mu.RLock()
		m := r.metrics[name]
		r.mu.RUnlock()
		sb.WriteString(m.Describe())
		sb.WriteString("\n")
	}
	return sb.String()
}
