// Package perf records how long core operations take.
//
// A Monitor is constructed explicitly and handed to each component; there is
// no process-wide instance. Instrumentation is scoped: Start returns a Span
// whose Stop must be deferred so the measurement is recorded on every exit
// path, successful or not.
//
//	func (x *Extractor) ExtractTable(path string) (err error) {
//	    span := x.monitor.Start("extract_table", "path", path)
//	    defer span.Stop(&err)
//	    ...
//	}
//
// A nil *Monitor is valid and records nothing.
package perf

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metric is one recorded operation.
type Metric struct {
	Operation string
	Duration  time.Duration
	Timestamp time.Time
	Success   bool
	Error     string
	Attrs     []any
}

// Summary aggregates the metrics of one operation.
type Summary struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Mean      time.Duration `json:"mean"`
	Min       time.Duration `json:"min"`
	Max       time.Duration `json:"max"`
}

// MaxRecent bounds the metrics kept by a Monitor. Summaries cover every
// measurement regardless.
const MaxRecent = 1000

// Monitor collects metrics in memory.
type Monitor struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	recent  []Metric
	next    int
	totals  map[string]*aggregate
	maxKeep int
}

type aggregate struct {
	count, failures int
	total, min, max time.Duration
}

// NewMonitor creates a monitor that logs each measurement at debug level.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{logger: logger, now: time.Now, totals: make(map[string]*aggregate), maxKeep: MaxRecent}
}

// Span is an in-flight measurement.
type Span struct {
	m     *Monitor
	op    string
	attrs []any
	start time.Time
}

// Start begins measuring op. attrs are slog-style key/value pairs.
func (m *Monitor) Start(op string, attrs ...any) *Span {
	if m == nil {
		return nil
	}
	return &Span{m: m, op: op, attrs: attrs, start: m.now()}
}

// Stop records the span. errp may be nil; when it points to a non-nil error
// the measurement is marked as failed.
func (s *Span) Stop(errp *error) {
	if s == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	s.m.record(s.op, s.m.now().Sub(s.start), err, s.attrs)
}

// StopOK records the span as successful.
func (s *Span) StopOK() { s.Stop(nil) }

func (m *Monitor) record(op string, d time.Duration, err error, attrs []any) {
	metric := Metric{
		Operation: op,
		Duration:  d,
		Timestamp: m.now(),
		Success:   err == nil,
		Attrs:     attrs,
	}
	if err != nil {
		metric.Error = err.Error()
	}

	m.mu.Lock()
	if len(m.recent) < m.maxKeep {
		m.recent = append(m.recent, metric)
	} else {
		m.recent[m.next] = metric
		m.next = (m.next + 1) % m.maxKeep
	}
	agg, ok := m.totals[op]
	if !ok {
		agg = &aggregate{min: d, max: d}
		m.totals[op] = agg
	}
	agg.count++
	if err != nil {
		agg.failures++
	}
	agg.total += d
	agg.min = min(agg.min, d)
	agg.max = max(agg.max, d)
	m.mu.Unlock()

	args := append([]any{"operation", op, "duration_ms", d.Milliseconds(), "success", metric.Success}, attrs...)
	if err != nil {
		args = append(args, "error", metric.Error)
	}
	m.logger.Debug("performance", args...)
}

// Metrics returns the most recent measurements, oldest first, up to
// MaxRecent of them.
func (m *Monitor) Metrics() []Metric {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metric, 0, len(m.recent))
	out = append(out, m.recent[m.next:]...)
	return append(out, m.recent[:m.next]...)
}

// Summary returns per-operation aggregates sorted by operation name.
func (m *Monitor) Summary() []Summary {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.totals))
	for op, a := range m.totals {
		out = append(out, Summary{
			Operation: op,
			Count:     a.count,
			Failures:  a.failures,
			Mean:      a.total / time.Duration(a.count),
			Min:       a.min,
			Max:       a.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
