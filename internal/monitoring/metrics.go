// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/per-source:  Response counts broken down by terminal source
//   - provider_errors:      Classified provider failures
//   - regenerations:        Second-pass generations attempted/accepted
//   - log_write_errors:     Interaction log failures (response never blocks)
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests     atomic.Int64
	llm          atomic.Int64
	llmRegen     atomic.Int64
	cacheHits    atomic.Int64
	fallbacks    atomic.Int64
	cooldowns    atomic.Int64
	safetyAborts atomic.Int64

	providerErrors    atomic.Int64
	quotaFailures     atomic.Int64
	regenAttempts     atomic.Int64
	regenAccepted     atomic.Int64
	guardTrips        atomic.Int64
	logWriteErrors    atomic.Int64
	correctionRecords atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordResponse records a completed response by terminal source.
func (mc *MetricsCollector) RecordResponse(source string) {
	mc.requests.Add(1)
	switch source {
	case "llm":
		mc.llm.Add(1)
	case "llm_regen":
		mc.llmRegen.Add(1)
	case "cache":
		mc.cacheHits.Add(1)
	case "fallback":
		mc.fallbacks.Add(1)
	case "cooldown":
		mc.cooldowns.Add(1)
	case "safety_abort":
		mc.safetyAborts.Add(1)
	}
}

// RecordProviderError records a classified provider failure.
func (mc *MetricsCollector) RecordProviderError(quota bool) {
	mc.providerErrors.Add(1)
	if quota {
		mc.quotaFailures.Add(1)
	}
}

// RecordRegeneration records a regeneration attempt and whether the
// regenerated reply was accepted.
func (mc *MetricsCollector) RecordRegeneration(accepted bool) {
	mc.regenAttempts.Add(1)
	if accepted {
		mc.regenAccepted.Add(1)
	}
}

// RecordGuardTrip records a fired novelty guard.
func (mc *MetricsCollector) RecordGuardTrip() { mc.guardTrips.Add(1) }

// RecordLogWriteError records a failed interaction log write.
func (mc *MetricsCollector) RecordLogWriteError() { mc.logWriteErrors.Add(1) }

// RecordCorrection records a persisted correction candidate.
func (mc *MetricsCollector) RecordCorrection() { mc.correctionRecords.Add(1) }

// LogWriteErrors returns the log failure count.
func (mc *MetricsCollector) LogWriteErrors() int64 { return mc.logWriteErrors.Load() }

// StartedAt returns when the collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current counters as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":           mc.requests.Load(),
		"llm":                mc.llm.Load(),
		"llm_regen":          mc.llmRegen.Load(),
		"cache":              mc.cacheHits.Load(),
		"fallback":           mc.fallbacks.Load(),
		"cooldown":           mc.cooldowns.Load(),
		"safety_abort":       mc.safetyAborts.Load(),
		"provider_errors":    mc.providerErrors.Load(),
		"quota_failures":     mc.quotaFailures.Load(),
		"regen_attempts":     mc.regenAttempts.Load(),
		"regen_accepted":     mc.regenAccepted.Load(),
		"guard_trips":        mc.guardTrips.Load(),
		"log_write_errors":   mc.logWriteErrors.Load(),
		"correction_records": mc.correctionRecords.Load(),
	}
}
