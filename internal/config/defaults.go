// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// GENERATION PIPELINE
// =============================================================================

// DefaultCacheTTL is how long a generated reply may be served from cache.
const DefaultCacheTTL = 90 * time.Second

// DefaultThrottleInterval is the minimum spacing between consecutive
// provider calls, process-wide.
const DefaultThrottleInterval = 1200 * time.Millisecond

// DefaultCallTimeout is the per-provider-call deadline.
const DefaultCallTimeout = 12 * time.Second

// DefaultMaxRetries is the number of retries per provider for transient
// failures, on top of the initial attempt.
const DefaultMaxRetries = 2

// DefaultBackoffCeiling caps the exponential retry backoff.
const DefaultBackoffCeiling = 8 * time.Second

// DefaultCooldownCeiling caps the quota-failure cooldown window.
const DefaultCooldownCeiling = 5 * time.Minute

// DefaultScoreThreshold is the composite score below which a reply is
// queued for correction review. Regeneration triggers below
// threshold-RegenThresholdSlack (never below RegenScoreFloor).
const DefaultScoreThreshold = 70

// RegenThresholdSlack is subtracted from the score threshold to form the
// regeneration trigger.
const RegenThresholdSlack = 14

// RegenScoreFloor is the lowest possible regeneration trigger.
const RegenScoreFloor = 40

// =============================================================================
// OUTPUT SHAPING
// =============================================================================

// DefaultMaxSentences is the sentence budget per reply.
const DefaultMaxSentences = 2

// DefaultMaxChars is the character budget per reply.
const DefaultMaxChars = 190

// =============================================================================
// RETRIEVAL
// =============================================================================

// DefaultRetrievalExamples is how many reference lines are embedded in a
// standard generation prompt.
const DefaultRetrievalExamples = 2

// DefaultCriticalRetrievalExamples is the example count for critical intents.
const DefaultCriticalRetrievalExamples = 4

// DefaultPromptTokenBudget bounds the prompt size; retrieval examples are
// trimmed first when the budget is exceeded.
const DefaultPromptTokenBudget = 1800

// =============================================================================
// NOVELTY GUARD
// =============================================================================

// RecentTurnWindow is how many same-speaker turns are kept on a request.
const RecentTurnWindow = 8

// GlobalRecentLines is the size of the cross-speaker recent-line ring.
const GlobalRecentLines = 30

// StyleMemoryDepth is the length of each per-speaker recent-use list.
const StyleMemoryDepth = 5

// =============================================================================
// HTTP SERVER
// =============================================================================

// DefaultServerPort is the listen port for the gateway.
const DefaultServerPort = 8132

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (safe for the event feed).
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (1MB).
const MaxRequestBodySize = 1 * 1024 * 1024
