package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Engine operations recorded by the service.
const (
	OpCreate      = "create"
	OpSetVariable = "set_variable"
	OpRecognize   = "recognize"
	OpInfo        = "info"
	OpDump        = "dump"
	OpRelease     = "release"
	OpValidate    = "validate"
)

// OperationMetric is one recorded engine operation.
type OperationMetric struct {
	Operation string        `json:"operation"`
	Backend   string        `json:"backend"`
	Language  string        `json:"language"`
	Format    string        `json:"format,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Success   bool          `json:"success"`
	ErrorType string        `json:"error_type,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Collector keeps recent metrics in memory and mirrors them to prometheus.
type Collector struct {
	mutex   sync.RWMutex
	metrics []OperationMetric
	limit   int
	logger  zerolog.Logger

	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	liveGauge  prometheus.Gauge
}

// NewCollector creates a collector holding at most limit metrics in memory.
// A non-positive limit keeps 10000.
func NewCollector(limit int, logger zerolog.Logger) *Collector {
	if limit <= 0 {
		limit = 10000
	}
	c := &Collector{
		metrics:  make([]OperationMetric, 0),
		limit:    limit,
		logger:   logger.With().Str("component", "metrics").Logger(),
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caia_ocr",
			Name:      "engine_operations_total",
			Help:      "Engine operations by operation, backend and outcome.",
		}, []string{"operation", "backend", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caia_ocr",
			Name:      "engine_operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation", "backend"}),
		liveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "caia_ocr",
			Name:      "live_engines",
			Help:      "Engines currently registered.",
		}),
	}
	c.registry.MustRegister(c.operations, c.durations, c.liveGauge)
	return c
}

// Registry exposes the prometheus registry for an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordMetric records an engine operation metric
func (c *Collector) RecordMetric(metric OperationMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	outcome := "success"
	if !metric.Success {
		outcome = "failure"
	}
	c.operations.WithLabelValues(metric.Operation, metric.Backend, outcome).Inc()
	c.durations.WithLabelValues(metric.Operation, metric.Backend).Observe(metric.Duration.Seconds())

	c.mutex.Lock()
	c.metrics = append(c.metrics, metric)
	if len(c.metrics) > c.limit {
		c.metrics = append([]OperationMetric(nil), c.metrics[len(c.metrics)-c.limit:]...)
	}
	c.mutex.Unlock()

	event := c.logger.Debug().
		Str("operation", metric.Operation).
		Str("backend", metric.Backend).
		Dur("duration", metric.Duration).
		Bool("success", metric.Success)
	if metric.ErrorType != "" {
		event = event.Str("error_type", metric.ErrorType)
	}
	event.Msg("Engine operation metric recorded")
}

// SetLiveEngines updates the live engine gauge.
func (c *Collector) SetLiveEngines(n int) {
	c.liveGauge.Set(float64(n))
}

// GetMetrics returns all collected metrics
func (c *Collector) GetMetrics() []OperationMetric {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]OperationMetric, len(c.metrics))
	copy(result, c.metrics)
	return result
}

// GetMetricsSummary returns a summary of metrics for analysis
func (c *Collector) GetMetricsSummary() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	byBackend := make(map[string]map[string]*OperationStats)
	for _, metric := range c.metrics {
		if byBackend[metric.Backend] == nil {
			byBackend[metric.Backend] = make(map[string]*OperationStats)
		}
		stats := byBackend[metric.Backend][metric.Operation]
		if stats == nil {
			stats = &OperationStats{}
			byBackend[metric.Backend][metric.Operation] = stats
		}
		stats.add(metric)
	}

	return map[string]interface{}{
		"by_backend":       byBackend,
		"total_operations": len(c.metrics),
	}
}

// ClearMetrics clears all collected metrics
func (c *Collector) ClearMetrics() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.metrics = make([]OperationMetric, 0)
}

// OperationStats holds statistics for a specific operation type
type OperationStats struct {
	Count         int   `json:"count"`
	SuccessCount  int   `json:"success_count"`
	FailureCount  int   `json:"failure_count"`
	TotalDuration int64 `json:"total_duration_ns"`
	MinDuration   int64 `json:"min_duration_ns"`
	MaxDuration   int64 `json:"max_duration_ns"`
	AvgDuration   int64 `json:"avg_duration_ns"`
}

func (o *OperationStats) add(metric OperationMetric) {
	d := int64(metric.Duration)
	o.Count++
	o.TotalDuration += d
	if metric.Success {
		o.SuccessCount++
	} else {
		o.FailureCount++
	}
	if o.Count == 1 || d < o.MinDuration {
		o.MinDuration = d
	}
	if d > o.MaxDuration {
		o.MaxDuration = d
	}
	o.AvgDuration = o.TotalDuration / int64(o.Count)
}

// GetSuccessRate returns the success rate as a percentage
func (o *OperationStats) GetSuccessRate() float64 {
	if o.Count == 0 {
		return 0.0
	}
	return float64(o.SuccessCount) / float64(o.Count) * 100.0
}

// GetAvgDurationMs returns the average duration in milliseconds
func (o *OperationStats) GetAvgDurationMs() float64 {
	return float64(o.AvgDuration) / float64(time.Millisecond)
}
