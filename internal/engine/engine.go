// Package engine - engine.go is the generation pipeline controller.
//
// DESIGN: One Engine instance owns the whole pipeline: safety gate,
// cache and in-flight dedup, quota cooldown, throttled provider calls,
// the evaluate/guard loop with a single regeneration, and finalization
// (style memory, cache write, interaction log). Generate never returns
// an error; every failure path degrades to a deterministic fallback
// line so the caller always gets a playable reply.
//
// Locking: e.mu guards style memories, the global recent ring and the
// cooldown state. It is held only for short in-memory work, never
// across a provider call.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/questline/banter-gateway/internal/config"
	"github.com/questline/banter-gateway/internal/content"
	"github.com/questline/banter-gateway/internal/evaluate"
	"github.com/questline/banter-gateway/internal/monitoring"
	"github.com/questline/banter-gateway/internal/novelty"
	"github.com/questline/banter-gateway/internal/providers"
	"github.com/questline/banter-gateway/internal/shape"
)

var errGenerationFailed = errors.New("generation failed")

// Engine orchestrates one generation request end to end.
type Engine struct {
	cfg      *config.Config
	router   *providers.Router
	registry *content.Registry
	safety   content.SafetyChecker
	tracker  *monitoring.Tracker
	metrics  *monitoring.MetricsCollector
	shaper   *shape.Shaper

	cache *registry
	gate  *throttle

	mu           sync.Mutex
	styleMem     map[string]*novelty.StyleMemory
	globalRecent *novelty.RecentRing
	cooldown     cooldownState
}

// New wires an Engine from its collaborators.
func New(cfg *config.Config, router *providers.Router, reg *content.Registry,
	safety content.SafetyChecker, tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector) *Engine {
	g := cfg.Generation
	return &Engine{
		cfg:          cfg,
		router:       router,
		registry:     reg,
		safety:       safety,
		tracker:      tracker,
		metrics:      metrics,
		shaper:       shape.New(g.MaxSentences, g.MaxChars),
		cache:        newRegistry(g.CacheTTL.D()),
		gate:         newThrottle(g.ThrottleInterval.D()),
		styleMem:     make(map[string]*novelty.StyleMemory),
		globalRecent: novelty.NewRecentRing(config.GlobalRecentLines),
	}
}

// outcome is the internal result of the pipeline before shaping.
type outcome struct {
	text       string
	source     string
	terminal   string
	provider   string
	score      int
	guardFlags []string
	reasons    []string
	bankEntry  *novelty.BankEntry
	remember   bool
}

// Generate runs the full pipeline for one request. It never returns an
// error: refusals, cooldowns and provider failures all resolve to a
// well-formed Response with the appropriate source.
func (e *Engine) Generate(ctx context.Context, req *Request) *Response {
	start := time.Now()
	reqID := uuid.NewString()
	rc := newRequestContext(req, e.cfg, e.registry)

	if !e.safety.CheckInput(req.PlayerInput) {
		log.Warn().Str("request_id", reqID).Str("speaker", req.CharacterID).
			Msg("input rejected by safety check")
		return e.finish(rc, reqID, start, outcome{
			text:     rc.profile.RefusalLine(),
			source:   SourceFallback,
			terminal: TerminalSafetyAbort,
			remember: true,
		})
	}

	if c, ok := e.cache.Lookup(rc.fingerprint, time.Now()); ok {
		return e.finish(rc, reqID, start, outcome{
			text: c.Text, source: SourceCache, terminal: TerminalCacheHit,
			provider: c.Provider, score: c.Score,
		})
	}

	task, owner := e.cache.AcquireOrJoin(rc.fingerprint)
	if !owner {
		select {
		case <-task.done:
		case <-ctx.Done():
			return e.fallback(rc, reqID, start, SourceFallback, TerminalFallback, nil)
		}
		if task.err == nil && task.resp != nil {
			return e.finish(rc, reqID, start, outcome{
				text: task.resp.Text, source: SourceCache, terminal: TerminalJoined,
				provider: task.resp.Provider, score: task.resp.Score,
			})
		}
		// Owner failed; each joiner synthesizes its own fallback.
		return e.fallback(rc, reqID, start, SourceFallback, TerminalFallback, nil)
	}

	resp, cached := e.generateOwned(ctx, rc, reqID, start)
	if cached != nil {
		e.cache.Settle(rc.fingerprint, task, cached, nil)
	} else {
		e.cache.Settle(rc.fingerprint, task, nil, errGenerationFailed)
	}
	return resp
}

// generateOwned runs the provider-facing part of the pipeline for the
// caller that owns the in-flight slot. cached is non-nil only when a
// fresh model reply was accepted.
func (e *Engine) generateOwned(ctx context.Context, rc *requestContext, reqID string, start time.Time) (*Response, *cachedContent) {
	e.mu.Lock()
	cd := e.cooldown.remaining(time.Now())
	e.mu.Unlock()
	if cd > 0 {
		log.Debug().Str("request_id", reqID).Dur("remaining", cd).
			Msg("provider cooldown active, serving bank line")
		return e.fallback(rc, reqID, start, SourceCooldown, TerminalCooldown, nil), nil
	}

	if err := e.gate.Wait(ctx); err != nil {
		return e.fallback(rc, reqID, start, SourceFallback, TerminalFallback, nil), nil
	}

	budget := e.cfg.Generation.PromptTokenBudget
	prompt := buildPrompt(rc, budget)
	res, err := e.router.Route(ctx, prompt, providers.RouteOptions{
		FastPath:     rc.fastPath,
		CriticalPath: rc.critical,
	})
	if err != nil {
		e.handleProviderError(reqID, err)
		return e.fallback(rc, reqID, start, SourceFallback, TerminalFallback, nil), nil
	}
	e.clearCooldown()

	chosen := strings.TrimSpace(res.Text)
	chosenProvider := res.Provider
	chosenEval, chosenFlags, chosenSafe := e.assess(rc, chosen)
	source, terminal := SourceLLM, TerminalLLM

	if !chosenSafe || chosenFlags.Any() || chosenEval.Composite < e.regenTrigger() {
		if chosenFlags.Any() {
			e.metrics.RecordGuardTrip()
		}
		reasons := append(chosenFlags.Reasons(), chosenEval.BlockingReasons()...)
		log.Debug().Str("request_id", reqID).Int("score", chosenEval.Composite).
			Strs("reasons", reasons).Msg("first reply rejected, regenerating")

		if second, provider, ok := e.regenerate(ctx, rc, reqID, chosen, reasons); ok {
			secondEval, secondFlags, secondSafe := e.assess(rc, second)
			// A tie keeps the regenerated text: it is fresher by construction.
			if secondSafe && !secondFlags.Any() && secondEval.Composite >= chosenEval.Composite {
				chosen, chosenProvider = second, provider
				chosenEval, chosenFlags, chosenSafe = secondEval, secondFlags, secondSafe
				source, terminal = SourceRegen, TerminalRegen
				e.metrics.RecordRegeneration(true)
			} else {
				e.metrics.RecordRegeneration(false)
			}
		}
	}

	// Unsafe or still-flagged output never ships; the bank line does.
	if !chosenSafe || chosenFlags.Any() {
		return e.fallback(rc, reqID, start, SourceFallback, TerminalFallback, chosenFlags.Reasons()), nil
	}

	cc := &cachedContent{Text: chosen, Provider: chosenProvider, Score: chosenEval.Composite}
	e.cache.Store(rc.fingerprint, rc.req.CharacterID, *cc, time.Now())

	if chosenEval.Composite < e.cfg.Generation.ScoreThreshold {
		e.recordCorrection(rc, reqID, chosen, chosenEval)
	}

	resp := e.finish(rc, reqID, start, outcome{
		text: chosen, source: source, terminal: terminal,
		provider: chosenProvider, score: chosenEval.Composite,
		reasons: chosenEval.ReasonCodes(), remember: true,
	})
	return resp, cc
}

// regenerate issues the single rewrite attempt. Quota and transport
// failures here are handled the same way as on the first call, but the
// caller keeps the first reply instead of falling back.
func (e *Engine) regenerate(ctx context.Context, rc *requestContext, reqID, firstText string, reasons []string) (string, string, bool) {
	if err := e.gate.Wait(ctx); err != nil {
		return "", "", false
	}
	prompt := buildRewritePrompt(rc, e.cfg.Generation.PromptTokenBudget, firstText, reasons)
	res, err := e.router.Route(ctx, prompt, providers.RouteOptions{CriticalPath: true})
	if err != nil {
		e.handleProviderError(reqID, err)
		e.metrics.RecordRegeneration(false)
		return "", "", false
	}
	e.clearCooldown()
	return strings.TrimSpace(res.Text), res.Provider, true
}

// assess runs the novelty guard and the composite evaluator on one
// candidate. Guarded memory state is read under e.mu.
func (e *Engine) assess(rc *requestContext, text string) (evaluate.Result, novelty.Flags, bool) {
	e.mu.Lock()
	mem := e.memoryLocked(rc.req.CharacterID)
	flags := novelty.Check(novelty.Input{
		Text:             text,
		RecentTurns:      rc.recentTurns,
		GlobalRecent:     e.globalRecent.Snapshot(),
		Memory:           mem,
		ForbiddenPhrases: rc.profile.ForbiddenPhrases(),
		VoicePattern:     rc.profile.FingerprintPattern(),
		TightEcho:        rc.profile.SmallBank(),
	})
	patternRepeat := mem.SeenStemOpening(text)
	e.mu.Unlock()

	contract := rc.profile.Contract()
	result := evaluate.Evaluate(text, evaluate.Context{
		IntentGoal:          rc.req.IntentCtx.Goal,
		SafetyGoal:          isSafetyGoal(rc.req.IntentCtx.Goal),
		MustInclude:         rc.req.IntentCtx.MustInclude,
		Avoid:               rc.req.IntentCtx.Avoid,
		Concepts:            content.IntentConcepts,
		VoiceMarkers:        contract.StyleMarkers,
		ForbidFlatYesNo:     contract.ForbidFlatYesNo,
		LocationVocab:       content.LocationVocab[strings.ToLower(rc.scene.Location)],
		MissionAnchor:       rc.req.MissionProgression,
		PlayerInput:         rc.req.PlayerInput,
		MaxSentences:        e.cfg.Generation.MaxSentences,
		MaxWords:            e.cfg.Generation.MaxChars / 4,
		GlobalEcho:          flags.GlobalEcho,
		OpenerRepeat:        flags.OpenerRepeat,
		MemoryPatternRepeat: patternRepeat,
	}, e.cfg.Generation.ScoreThreshold)

	return result, flags, e.safety.CheckOutput(text)
}

// isSafetyGoal reports whether the intent goal is explicitly about player
// safety. Such replies skip the engagement rule: a flat warning is fine.
func isSafetyGoal(goal string) bool {
	lower := strings.ToLower(goal)
	for _, kw := range []string{"warn", "danger", "safety", "abort", "evacuate", "get out"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// regenTrigger is the score below which a first reply earns a rewrite.
// It sits below the acceptance threshold so borderline replies ship
// without burning a second provider call.
func (e *Engine) regenTrigger() int {
	t := e.cfg.Generation.ScoreThreshold - config.RegenThresholdSlack
	if t < config.RegenScoreFloor {
		t = config.RegenScoreFloor
	}
	return t
}

// fallback synthesizes a deterministic reply: the designer-authored
// fallback_text when the request carries one, otherwise a bank line
// picked against the speaker's style memory.
func (e *Engine) fallback(rc *requestContext, reqID string, start time.Time, source, terminal string, guardFlags []string) *Response {
	o := outcome{source: source, terminal: terminal, guardFlags: guardFlags, remember: true}
	if ft := strings.TrimSpace(rc.req.FallbackText); ft != "" {
		o.text = ft
	} else {
		e.mu.Lock()
		text, entry := e.registry.Synthesize(rc.req.CharacterID, rc.scene, rc.bankSeed,
			e.memoryLocked(rc.req.CharacterID))
		e.mu.Unlock()
		o.text = text
		o.bankEntry = &entry
	}
	return e.finish(rc, reqID, start, o)
}

// finish shapes the chosen text, updates per-speaker and global novelty
// state when the reply is fresh, and emits metrics plus the interaction
// record. This is the single exit point for every pipeline path.
func (e *Engine) finish(rc *requestContext, reqID string, start time.Time, o outcome) *Response {
	final := e.shaper.Shape(rc.profile.VoiceTransform(o.text, rc.scene))

	if o.remember && o.text != "" {
		e.mu.Lock()
		mem := e.memoryLocked(rc.req.CharacterID)
		if o.bankEntry != nil {
			mem.RememberBank(*o.bankEntry, config.StyleMemoryDepth)
		}
		mem.RememberOpener(o.text, config.StyleMemoryDepth)
		e.globalRecent.Push(o.text)
		e.mu.Unlock()
	}

	latency := time.Since(start).Milliseconds()
	src := o.source
	if o.terminal == TerminalSafetyAbort {
		src = o.terminal
	}
	e.metrics.RecordResponse(src)
	e.tracker.Record(&monitoring.InteractionRecord{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Speaker:    rc.req.CharacterID,
		Intent:     rc.req.Intent,
		Source:     o.source,
		Terminal:   o.terminal,
		Provider:   o.provider,
		Score:      o.score,
		GuardFlags: o.guardFlags,
		Reasons:    o.reasons,
		LatencyMs:  latency,
		Text:       final,
	})

	return &Response{
		NPCText:               final,
		Intent:                rc.req.Intent,
		TimeCostSeconds:       timeCost(final),
		SuggestedStateEffects: stateEffects(rc),
		Source:                o.source,
		Provider:              o.provider,
		StyleScore:            o.score,
		LatencyMs:             latency,
	}
}

// handleProviderError classifies a routing failure and, on quota
// exhaustion, opens or extends the cooldown window.
func (e *Engine) handleProviderError(reqID string, err error) {
	quota := providers.IsQuota(err)
	e.metrics.RecordProviderError(quota)
	if !quota {
		log.Warn().Str("request_id", reqID).Err(err).Msg("provider call failed")
		return
	}
	e.mu.Lock()
	d := e.cooldown.recordQuotaFailure(
		e.cfg.Generation.ThrottleInterval.D(),
		e.cfg.Generation.CooldownCeiling.D(),
		time.Now())
	n := e.cooldown.consecutive
	e.mu.Unlock()
	log.Warn().Str("request_id", reqID).Int("consecutive", n).Dur("cooldown", d).
		Msg("quota exhausted, entering cooldown")
}

func (e *Engine) clearCooldown() {
	e.mu.Lock()
	e.cooldown.clear()
	e.mu.Unlock()
}

// recordCorrection pairs an accepted-but-low-scoring model reply with
// the bank line the fallback path would have produced.
func (e *Engine) recordCorrection(rc *requestContext, reqID, modelText string, res evaluate.Result) {
	e.mu.Lock()
	fallbackText, _ := e.registry.Synthesize(rc.req.CharacterID, rc.scene, rc.bankSeed,
		e.memoryLocked(rc.req.CharacterID))
	e.mu.Unlock()
	e.tracker.RecordCorrection(&monitoring.CorrectionRecord{
		RequestID:    reqID,
		Timestamp:    time.Now().UTC(),
		Speaker:      rc.req.CharacterID,
		Intent:       rc.req.Intent,
		ModelText:    modelText,
		FallbackText: fallbackText,
		Score:        res.Composite,
		Reasons:      res.ReasonCodes(),
	})
}

// memoryLocked returns the style memory for a speaker, creating it on
// first use. Caller holds e.mu.
func (e *Engine) memoryLocked(speaker string) *novelty.StyleMemory {
	mem, ok := e.styleMem[speaker]
	if !ok {
		mem = novelty.NewStyleMemory()
		e.styleMem[speaker] = mem
	}
	return mem
}

// InvalidateSpeaker drops all cached replies for one speaker.
func (e *Engine) InvalidateSpeaker(speaker string) int {
	n := e.cache.InvalidateSpeaker(speaker)
	log.Info().Str("speaker", speaker).Int("evicted", n).Msg("cache invalidated")
	return n
}

// Health is the gateway health snapshot served by /healthz.
type Health struct {
	Status                   string           `json:"status"`
	UptimeSec                int64            `json:"uptime_sec"`
	Providers                []string         `json:"providers"`
	CacheEntries             int              `json:"cache_entries"`
	InFlight                 int              `json:"in_flight"`
	CooldownRemainingSec     float64          `json:"cooldown_remaining_sec"`
	ConsecutiveQuotaFailures int              `json:"consecutive_quota_failures"`
	LogWriteErrors           int64            `json:"log_write_errors"`
	Counters                 map[string]int64 `json:"counters"`
}

// Health reports the current pipeline state.
func (e *Engine) Health() Health {
	cached, inflight := e.cache.Sizes()
	e.mu.Lock()
	cd := e.cooldown.remaining(time.Now())
	n := e.cooldown.consecutive
	e.mu.Unlock()

	status := "ok"
	if cd > 0 {
		status = "cooldown"
	}
	return Health{
		Status:                   status,
		UptimeSec:                int64(time.Since(e.metrics.StartedAt()).Seconds()),
		Providers:                e.router.Providers(),
		CacheEntries:             cached,
		InFlight:                 inflight,
		CooldownRemainingSec:     cd.Seconds(),
		ConsecutiveQuotaFailures: n,
		LogWriteErrors:           e.metrics.LogWriteErrors(),
		Counters:                 e.metrics.Stats(),
	}
}

// timeCost estimates how long the NPC takes to deliver a line, in
// in-game seconds. Roughly reading speed plus a beat.
func timeCost(text string) float64 {
	words := len(strings.Fields(text))
	return 1.0 + float64(words)/6.0
}

// stateEffects derives suggested game-state effects from the scene.
func stateEffects(rc *requestContext) []string {
	var effects []string
	if rc.scene.AlarmLevel >= 2 {
		effects = append(effects, "guard_alert_up")
	}
	if rc.scene.TimeRemainingSec > 0 && rc.scene.TimeRemainingSec < 30 {
		effects = append(effects, "time_pressure_high")
	}
	return effects
}
