// Package telemetry collects in-process counters for the detection endpoints.
// Numbers are surfaced on the /stats endpoint; nothing leaves the process.
package telemetry

import (
	"sync/atomic"
	"time"
)

// Collector aggregates request counts and cumulative latencies per operation.
type Collector struct {
	predictCount   atomic.Int64
	predictHits    atomic.Int64
	predictNanos   atomic.Int64
	explainCount   atomic.Int64
	explainErrors  atomic.Int64
	explainNanos   atomic.Int64
	chatCount      atomic.Int64
	chatFallbacks  atomic.Int64
	chatNanos      atomic.Int64
	startedAt      time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

// TrackPredict records one classification. cached marks a cache hit.
func (c *Collector) TrackPredict(d time.Duration, cached bool) {
	c.predictCount.Add(1)
	c.predictNanos.Add(int64(d))
	if cached {
		c.predictHits.Add(1)
	}
}

// TrackExplain records one attribution run. failed marks the sentinel path.
func (c *Collector) TrackExplain(d time.Duration, failed bool) {
	c.explainCount.Add(1)
	c.explainNanos.Add(int64(d))
	if failed {
		c.explainErrors.Add(1)
	}
}

// TrackChat records one assistant call. fallback marks the offline path.
func (c *Collector) TrackChat(d time.Duration, fallback bool) {
	c.chatCount.Add(1)
	c.chatNanos.Add(int64(d))
	if fallback {
		c.chatFallbacks.Add(1)
	}
}

// Stats is a point-in-time snapshot suitable for JSON serialization.
type Stats struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	PredictCount    int64   `json:"predict_count"`
	PredictCacheHit int64   `json:"predict_cache_hits"`
	PredictAvgMs    float64 `json:"predict_avg_ms"`
	ExplainCount    int64   `json:"explain_count"`
	ExplainErrors   int64   `json:"explain_errors"`
	ExplainAvgMs    float64 `json:"explain_avg_ms"`
	ChatCount       int64   `json:"chat_count"`
	ChatFallbacks   int64   `json:"chat_fallbacks"`
	ChatAvgMs       float64 `json:"chat_avg_ms"`
}

// Snapshot returns the current aggregates.
func (c *Collector) Snapshot() Stats {
	return Stats{
		UptimeSeconds:   time.Since(c.startedAt).Seconds(),
		PredictCount:    c.predictCount.Load(),
		PredictCacheHit: c.predictHits.Load(),
		PredictAvgMs:    avgMs(c.predictNanos.Load(), c.predictCount.Load()),
		ExplainCount:    c.explainCount.Load(),
		ExplainErrors:   c.explainErrors.Load(),
		ExplainAvgMs:    avgMs(c.explainNanos.Load(), c.explainCount.Load()),
		ChatCount:       c.chatCount.Load(),
		ChatFallbacks:   c.chatFallbacks.Load(),
		ChatAvgMs:       avgMs(c.chatNanos.Load(), c.chatCount.Load()),
	}
}

func avgMs(nanos, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(nanos) / float64(count) / 1e6
}
