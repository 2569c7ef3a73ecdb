// Package engine - types.go defines the request/response model and the
// request fingerprint.
//
// DESIGN: Requests arrive already validated from the HTTP layer. The
// engine builds one immutable RequestContext per request; everything
// downstream (prompting, evaluation, guarding, shaping) reads from it and
// never mutates it.
package engine

import (
	"crypto/sha1" // #nosec G505 -- fingerprinting, not crypto
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/questline/banter-gateway/internal/config"
	"github.com/questline/banter-gateway/internal/content"
	"github.com/questline/banter-gateway/internal/novelty"
)

// Request is the generation request consumed from the HTTP layer.
type Request struct {
	CharacterID  string         `json:"character_id"`
	PlayerInput  string         `json:"player_input"`
	Intent       string         `json:"intent"`
	FunctionID   string         `json:"function_id"`
	FallbackText string         `json:"fallback_text,omitempty"`
	IntentCtx    IntentContext  `json:"intent_context"`
	CurrentCtx   CurrentContext `json:"current_context"`

	MissionProgression string `json:"mission_progression,omitempty"`
	NPCMemoryCard      string `json:"npc_memory_card,omitempty"`
}

// IntentContext carries the semantic goals for the reply.
type IntentContext struct {
	Goal              string   `json:"goal"`
	MustInclude       []string `json:"must_include,omitempty"`
	Avoid             []string `json:"avoid,omitempty"`
	CharacterContract string   `json:"character_contract,omitempty"`
}

// CurrentContext is the scene/game-state snapshot.
type CurrentContext struct {
	Location         string   `json:"location"`
	TimeRemainingSec int      `json:"time_remaining_sec"`
	AlarmLevel       int      `json:"alarm_level"`
	SceneFlags       []string `json:"scene_flags,omitempty"`
	RecentTurns      []string `json:"recent_turns,omitempty"`
}

// Response is the generation response returned to the caller. Source is
// always one of llm|llm_regen|cache|fallback|cooldown; raw errors never
// reach this struct.
type Response struct {
	NPCText               string   `json:"npc_text"`
	Intent                string   `json:"intent"`
	TimeCostSeconds       float64  `json:"time_cost_seconds"`
	SuggestedStateEffects []string `json:"suggested_state_effects,omitempty"`
	Source                string   `json:"source"`
	Provider              string   `json:"provider,omitempty"`
	StyleScore            int      `json:"style_score,omitempty"`
	LatencyMs             int64    `json:"latency_ms"`
}

// Response sources.
const (
	SourceLLM      = "llm"
	SourceRegen    = "llm_regen"
	SourceCache    = "cache"
	SourceFallback = "fallback"
	SourceCooldown = "cooldown"
)

// Pipeline terminal states (logged; a superset of wire sources).
const (
	TerminalCacheHit    = "cache_hit"
	TerminalJoined      = "joined"
	TerminalCooldown    = "cooldown"
	TerminalFallback    = "fallback"
	TerminalLLM         = "llm"
	TerminalRegen       = "llm_regen"
	TerminalSafetyAbort = "safety_abort"
)

// requestContext is the normalized, immutable view of one request.
type requestContext struct {
	req     *Request
	profile content.Profile
	scene   content.SceneInfo

	recentTurns []string // same speaker, at most RecentTurnWindow
	critical    bool
	fastPath    bool
	fingerprint string
	bankSeed    string

	exampleCount int
	maxSentences int
	maxChars     int
}

// newRequestContext normalizes a request. Recent turns are capped, the
// fingerprint is computed once, and the speaker profile is resolved.
func newRequestContext(req *Request, cfg *config.Config, registry *content.Registry) *requestContext {
	turns := req.CurrentCtx.RecentTurns
	if len(turns) > config.RecentTurnWindow {
		turns = turns[len(turns)-config.RecentTurnWindow:]
	}
	rc := &requestContext{
		req:     req,
		profile: registry.Lookup(req.CharacterID),
		scene: content.SceneInfo{
			Location:         req.CurrentCtx.Location,
			TimeRemainingSec: req.CurrentCtx.TimeRemainingSec,
			AlarmLevel:       req.CurrentCtx.AlarmLevel,
		},
		recentTurns: turns,
		critical:    cfg.IsCriticalIntent(req.Intent),
		// Tight deadlines skip retry backoff; a late reply is a wrong reply.
		fastPath: req.CurrentCtx.TimeRemainingSec > 0 && req.CurrentCtx.TimeRemainingSec < 15,
		bankSeed: novelty.Seed(req.CharacterID, req.PlayerInput,
			req.CurrentCtx.TimeRemainingSec, req.CurrentCtx.AlarmLevel),
		maxSentences: cfg.Generation.MaxSentences,
		maxChars:     cfg.Generation.MaxChars,
	}
	rc.exampleCount = cfg.Generation.RetrievalExamples
	if rc.critical {
		rc.exampleCount = cfg.Generation.CriticalExamples
	}
	rc.fingerprint = Fingerprint(req)
	return rc
}

// Fingerprint computes the deterministic digest identifying a logically
// equivalent request: speaker, intent, location, bucketed scene numerics,
// normalized player input and a short digest of the recent turns.
// time_remaining is bucketed to 30s so the clock does not defeat caching.
func Fingerprint(req *Request) string {
	var b strings.Builder
	b.WriteString(req.CharacterID)
	b.WriteByte('|')
	b.WriteString(req.Intent)
	b.WriteByte('|')
	b.WriteString(strings.ToLower(req.CurrentCtx.Location))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d|%d|", req.CurrentCtx.TimeRemainingSec/30, req.CurrentCtx.AlarmLevel)
	b.WriteString(normalizeInput(req.PlayerInput))
	b.WriteByte('|')
	b.WriteString(recentTurnDigest(req.CurrentCtx.RecentTurns))

	sum := sha1.Sum([]byte(b.String())) // #nosec G401 -- cache key, not crypto
	return hex.EncodeToString(sum[:])
}

// normalizeInput lowercases and collapses the player input so cosmetic
// differences map to the same fingerprint.
func normalizeInput(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

// recentTurnDigest summarizes the last two turns by their opener keys.
func recentTurnDigest(turns []string) string {
	if len(turns) > 2 {
		turns = turns[len(turns)-2:]
	}
	keys := make([]string, 0, len(turns))
	for _, t := range turns {
		keys = append(keys, novelty.OpenerKey(t))
	}
	return strings.Join(keys, "/")
}
