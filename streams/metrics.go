package streams

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Tags is an ordered set of metric tag key/value pairs, carrying the owning
// topology's application identity, processor kind, key/value type names and
// partition index.
type Tags struct {
	AppID     string
	Topology  string
	Processor string
	Kind      string
	KeyType   string
	ValueType string
	Partition int32
}

var tagEscaper = strings.NewReplacer(" ", `\ `, ",", `\,`, "=", `\=`)

// escapeTagValue applies influx-line-protocol-style escaping to a tag value:
// spaces, commas and equals signs are backslash-escaped.
func escapeTagValue(v string) string {
	return tagEscaper.Replace(v)
}

// FormatMetricName renders name and the Tags as
// "metric_name,tag1=v1,tag2=v2,..." with escaped tag values.
func FormatMetricName(name string, t Tags) string {
	var b strings.Builder
	b.WriteString(name)
	write := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeTagValue(v))
	}
	write("app", t.AppID)
	write("topology", t.Topology)
	write("processor", t.Processor)
	write("kind", t.Kind)
	write("key_type", t.KeyType)
	write("value_type", t.ValueType)
	if t.Partition >= 0 {
		write("partition", intToStr(t.Partition))
	}
	return b.String()
}

func intToStr(i int32) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [12]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Metrics is a per-processor collection of counters/gauges, registered
// against a shared prometheus.Registry owned by the Topology. Processors
// call the Inc/Add/Set helpers from their process() implementation; the
// metrics iteration hook in the Processor contract exposes the underlying
// collectors for scraping or inspection.
type Metrics struct {
	registry *prometheus.Registry
	tags     Tags
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// NewMetrics creates a Metrics bound to registry (may be nil, in which case
// counters and gauges are still created, updated and yielded by Each but
// are not registered anywhere — useful in tests that do not care about
// metrics).
func NewMetrics(registry *prometheus.Registry, tags Tags) *Metrics {
	return &Metrics{
		registry: registry,
		tags:     tags,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

func (m *Metrics) labels() prometheus.Labels {
	return prometheus.Labels{
		"app":        m.tags.AppID,
		"topology":   m.tags.Topology,
		"processor":  m.tags.Processor,
		"kind":       m.tags.Kind,
		"key_type":   m.tags.KeyType,
		"value_type": m.tags.ValueType,
		"partition":  intToStr(m.tags.Partition),
	}
}

// IncCounter increments (creating on first use) a counter named name.
func (m *Metrics) IncCounter(name string) {
	if m == nil {
		return
	}
	c, ok := m.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        name,
			Help:        name + " counter",
			ConstLabels: m.labels(),
		})
		m.counters[name] = c
		if m.registry != nil {
			_ = m.registry.Register(c)
		}
	}
	c.Inc()
}

// SetGauge sets (creating on first use) a gauge named name to v.
func (m *Metrics) SetGauge(name string, v float64) {
	if m == nil {
		return
	}
	g, ok := m.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        name + " gauge",
			ConstLabels: m.labels(),
		})
		m.gauges[name] = g
		if m.registry != nil {
			_ = m.registry.Register(g)
		}
	}
	g.Set(v)
}

// Each invokes fn for every registered collector, the metrics iteration
// hook named in the Processor contract.
func (m *Metrics) Each(fn func(prometheus.Collector)) {
	if m == nil {
		return
	}
	for _, c := range m.counters {
		fn(c)
	}
	for _, g := range m.gauges {
		fn(g)
	}
}
