// Package telemetry keeps in-process counters and histograms and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram is a thread-safe histogram with fixed bucket boundaries. Bucket
// counts are stored non-cumulative and summed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated with CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Metric families
// ---------------------------------------------------------------------------

type family struct {
	name   string
	help   string
	labels []string
}

var (
	httpDuration = family{"http_server_request_duration_seconds", "Duration of HTTP requests in seconds.", []string{"method", "route", "status_code"}}
	calcDuration = family{"calculation_duration_seconds", "Duration of calculator evaluations in seconds.", []string{"calculator"}}
	calculations = family{"calculations_total", "Calculator requests by outcome.", []string{"calculator", "outcome"}}
	conversions  = family{"conversions_total", "Conversion requests by kind and outcome.", []string{"kind", "outcome"}}
	reloads      = family{"schema_reloads_total", "Calculator repository reloads by outcome.", []string{"outcome"}}
)

var counterFamilies = []family{calculations, conversions, reloads}

var defaultDurationBuckets = []float64{
	0.0005, 0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

func seriesKey(values ...string) string { return strings.Join(values, "|") }

// Metrics holds every series exported by the service. The zero value is not
// usable; call New.
type Metrics struct {
	mu          sync.RWMutex
	counters    map[string]map[string]*int64
	histograms  map[string]map[string]*histogram
	active      int64
	calculators int64
}

// New returns an empty registry.
func New() *Metrics {
	return &Metrics{
		counters:   make(map[string]map[string]*int64),
		histograms: make(map[string]map[string]*histogram),
	}
}

func (m *Metrics) inc(f family, values ...string) {
	key := seriesKey(values...)
	m.mu.RLock()
	p, ok := m.counters[f.name][key]
	m.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}

	m.mu.Lock()
	series, ok := m.counters[f.name]
	if !ok {
		series = make(map[string]*int64)
		m.counters[f.name] = series
	}
	p, ok = series[key]
	if !ok {
		p = new(int64)
		series[key] = p
	}
	m.mu.Unlock()
	atomic.AddInt64(p, 1)
}

func (m *Metrics) observe(f family, v float64, values ...string) {
	key := seriesKey(values...)
	m.mu.RLock()
	h, ok := m.histograms[f.name][key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		series, exists := m.histograms[f.name]
		if !exists {
			series = make(map[string]*histogram)
			m.histograms[f.name] = series
		}
		h, ok = series[key]
		if !ok {
			h = newHistogram(defaultDurationBuckets)
			series[key] = h
		}
		m.mu.Unlock()
	}
	h.Observe(v)
}

// Counter returns the current value of a counter series. Labels are given in
// the family's declared order.
func (m *Metrics) Counter(name string, labels ...string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.counters[name][seriesKey(labels...)]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// HistogramCount returns the number of observations of a histogram series.
func (m *Metrics) HistogramCount(name string, labels ...string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.histograms[name][seriesKey(labels...)]
	if !ok {
		return 0
	}
	return h.Count()
}

// ObserveCalculation records the outcome and duration of one calculator
// request.
func (m *Metrics) ObserveCalculation(calculator, outcome string, d time.Duration) {
	m.inc(calculations, calculator, outcome)
	m.observe(calcDuration, d.Seconds(), calculator)
}

// ObserveConversion records one conversion request.
func (m *Metrics) ObserveConversion(kind, outcome string) {
	m.inc(conversions, kind, outcome)
}

// ObserveReload records one calculator repository reload and the resulting
// number of calculators.
func (m *Metrics) ObserveReload(outcome string, calculators int) {
	m.inc(reloads, outcome)
	if outcome == "success" {
		atomic.StoreInt64(&m.calculators, int64(calculators))
	}
}

// ---------------------------------------------------------------------------
// Echo integration
// ---------------------------------------------------------------------------

// Middleware records request duration per method, route and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = errorStatus(err)
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			m.observe(httpDuration, time.Since(start).Seconds(), c.Request().Method, route, strconv.Itoa(status))
			return err
		}
	}
}

func errorStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}

// Handler serves all series in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		m.writeHistograms(&b, httpDuration)
		m.writeHistograms(&b, calcDuration)
		for _, f := range counterFamilies {
			m.writeCounters(&b, f)
		}

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

		b.WriteString("# HELP calculators_loaded Number of calculators in the active repository snapshot.\n")
		b.WriteString("# TYPE calculators_loaded gauge\n")
		fmt.Fprintf(&b, "calculators_loaded %d\n", atomic.LoadInt64(&m.calculators))

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

// SetCalculatorsLoaded sets the loaded calculator gauge.
func (m *Metrics) SetCalculatorsLoaded(n int) {
	atomic.StoreInt64(&m.calculators, int64(n))
}

// ---------------------------------------------------------------------------
// Prometheus format helpers
// ---------------------------------------------------------------------------

func formatLabels(f family, key string) string {
	values := strings.Split(key, "|")
	parts := make([]string, 0, len(f.labels))
	for i, name := range f.labels {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", name, v))
	}
	return strings.Join(parts, ",")
}

func (m *Metrics) writeCounters(b *strings.Builder, f family) {
	m.mu.RLock()
	series := m.counters[f.name]
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	values := make(map[string]int64, len(series))
	for k, p := range series {
		values[k] = atomic.LoadInt64(p)
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	fmt.Fprintf(b, "# HELP %s %s\n", f.name, f.help)
	fmt.Fprintf(b, "# TYPE %s counter\n", f.name)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s} %d\n", f.name, formatLabels(f, k), values[k])
	}
	b.WriteByte('\n')
}

func (m *Metrics) writeHistograms(b *strings.Builder, f family) {
	m.mu.RLock()
	series := make(map[string]*histogram, len(m.histograms[f.name]))
	for k, h := range m.histograms[f.name] {
		series[k] = h
	}
	m.mu.RUnlock()
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "# HELP %s %s\n", f.name, f.help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", f.name)
	for _, k := range keys {
		writeSingleHistogram(b, f.name, formatLabels(f, k), series[k])
	}
	b.WriteByte('\n')
}

func writeSingleHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}
