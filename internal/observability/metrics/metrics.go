package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type collector interface {
	write(sb *strings.Builder)
}

type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

type gaugeVec struct {
	name   string
	help   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.RWMutex
	values map[string]*histogramValue
}

type histogramValue struct {
	counts []uint64
	sum    float64
	total  uint64
}

// Outcome labels for operation counters.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	collectors []collector

	operations   = newCounterVec("encodly_operations_total", "Total number of codec operations by outcome.", []string{"operation", "outcome"})
	bytesHandled = newCounterVec("encodly_bytes_processed_total", "Input bytes handed to codec operations.", []string{"operation"})
	opLatency    = newHistogramVec("encodly_operation_duration_seconds", "Wall-clock time of codec operations, including worker round trips.", []string{"operation"})
	queueItems   = newGaugeVec("encodly_queue_items", "Batch queue items by status.", []string{"status"})
	workerFaults = newCounterVec("encodly_worker_faults_total", "Worker ports that failed while calls were outstanding.", nil)
)

func init() {
	collectors = []collector{operations, bytesHandled, opLatency, queueItems, workerFaults}
}

func newCounterVec(name, help string, labels []string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

func newGaugeVec(name, help string, labels []string) *gaugeVec {
	return &gaugeVec{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

func newHistogramVec(name, help string, labels []string) *histogramVec {
	buckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}
	return &histogramVec{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		values:  make(map[string]*histogramValue),
	}
}

func labelKey(labels, values []string) string {
	if len(values) != len(labels) {
		panic(fmt.Sprintf("expected %d labels, got %d", len(labels), len(values)))
	}
	return strings.Join(values, ",")
}

func (cv *counterVec) add(delta float64, values ...string) {
	key := labelKey(cv.labels, values)
	cv.mu.Lock()
	cv.values[key] += delta
	cv.mu.Unlock()
}

func (cv *counterVec) value(values ...string) float64 {
	key := labelKey(cv.labels, values)
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return cv.values[key]
}

func (cv *counterVec) write(sb *strings.Builder) {
	writeHeader(sb, cv.name, cv.help, "counter")
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	for _, key := range sortedKeys(cv.values) {
		sb.WriteString(cv.name)
		writeLabels(sb, cv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", cv.values[key])
	}
}

func (gv *gaugeVec) set(v float64, values ...string) {
	key := labelKey(gv.labels, values)
	gv.mu.Lock()
	gv.values[key] = v
	gv.mu.Unlock()
}

func (gv *gaugeVec) write(sb *strings.Builder) {
	writeHeader(sb, gv.name, gv.help, "gauge")
	gv.mu.RLock()
	defer gv.mu.RUnlock()
	for _, key := range sortedKeys(gv.values) {
		sb.WriteString(gv.name)
		writeLabels(sb, gv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", gv.values[key])
	}
}

func (hv *histogramVec) observe(sample float64, values ...string) {
	key := labelKey(hv.labels, values)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	entry, ok := hv.values[key]
	if !ok {
		entry = &histogramValue{counts: make([]uint64, len(hv.buckets)+1)}
		hv.values[key] = entry
	}
	entry.sum += sample
	entry.total++
	idx := sort.SearchFloat64s(hv.buckets, sample)
	entry.counts[idx]++
}

func (hv *histogramVec) write(sb *strings.Builder) {
	writeHeader(sb, hv.name, hv.help, "histogram")
	hv.mu.RLock()
	defer hv.mu.RUnlock()
	keys := make([]string, 0, len(hv.values))
	for k := range hv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entry := hv.values[key]
		cumulative := uint64(0)
		for i, upper := range hv.buckets {
			cumulative += entry.counts[i]
			sb.WriteString(hv.name)
			sb.WriteString("_bucket")
			writeLabels(sb, hv.labels, key, fmt.Sprintf("le=\"%g\"", upper))
			fmt.Fprintf(sb, " %d\n", cumulative)
		}
		cumulative += entry.counts[len(hv.buckets)]
		sb.WriteString(hv.name)
		sb.WriteString("_bucket")
		writeLabels(sb, hv.labels, key, "le=\"+Inf\"")
		fmt.Fprintf(sb, " %d\n", cumulative)

		sb.WriteString(hv.name)
		sb.WriteString("_sum")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", entry.sum)
		sb.WriteString(hv.name)
		sb.WriteString("_count")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %d\n", entry.total)
	}
}

func sortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeLabels renders {a="x",b="y"} for key, appending extra (already
// formatted) when set. Nothing is written when there are no labels at all.
func writeLabels(sb *strings.Builder, labels []string, key, extra string) {
	if len(labels) == 0 && extra == "" {
		return
	}
	sb.WriteString("{")
	if len(labels) > 0 {
		parts := strings.Split(key, ",")
		for i, label := range labels {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(label)
			sb.WriteString("=\"")
			sb.WriteString(escapeLabel(parts[i]))
			sb.WriteString("\"")
		}
	}
	if extra != "" {
		if len(labels) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(extra)
	}
	sb.WriteString("}")
}

func writeHeader(sb *strings.Builder, name, help, metricType string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(metricType)
	sb.WriteString("\n")
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\n", "\\n")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

func render() string {
	var sb strings.Builder
	for _, c := range collectors {
		c.write(&sb)
	}
	return sb.String()
}

// Write dumps the registry in the Prometheus text exposition format.
func Write(w io.Writer) error {
	_, err := io.WriteString(w, render())
	return err
}

// Handler exposes the metrics registry as an http.Handler compatible with Prometheus.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, render())
	})
}

// RecordOperation counts a finished operation and the input bytes it was given.
func RecordOperation(operation, outcome string, bytes int, dur time.Duration) {
	operation = normalise(operation)
	operations.add(1, operation, normalise(outcome))
	if bytes > 0 {
		bytesHandled.add(float64(bytes), operation)
	}
	opLatency.observe(dur.Seconds(), operation)
}

// SetQueueItems sets the gauge for batch items in status.
func SetQueueItems(status string, count int) {
	queueItems.set(float64(count), normalise(status))
}

// RecordWorkerFault counts a failed worker port.
func RecordWorkerFault() {
	workerFaults.add(1)
}

// OperationCount returns the counter value for an operation and outcome.
func OperationCount(operation, outcome string) float64 {
	return operations.value(normalise(operation), normalise(outcome))
}

// WorkerFaults returns the number of recorded worker faults.
func WorkerFaults() float64 {
	return workerFaults.value()
}

func normalise(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "unspecified"
	}
	return label
}
