// Package evaluate scores candidate replies against voice, intent, scene
// and engagement rules.
//
// DESIGN: Four independent sub-scores each start at 100 and take fixed
// penalties per failed rule, then blend into a composite:
//
//	composite = round(0.45*style + 0.24*intent + 0.16*anchor + 0.15*humor)
//
// Reasons tagged non-blocking are soft style nudges: they affect neither
// pass/fail nor regeneration decisions, only reporting.
package evaluate

import (
	"math"
	"regexp"
	"strings"
)

// Sub-score weights.
const (
	WeightStyle  = 0.45
	WeightIntent = 0.24
	WeightAnchor = 0.16
	WeightHumor  = 0.15
)

// Reason is one failed rule.
type Reason struct {
	Code     string `json:"code"`
	Blocking bool   `json:"blocking"`
}

// Result is the outcome of evaluating one candidate.
type Result struct {
	Composite int      `json:"composite"`
	Style     int      `json:"style"`
	Intent    int      `json:"intent"`
	Anchor    int      `json:"anchor"`
	Humor     int      `json:"humor"`
	Reasons   []Reason `json:"reasons,omitempty"`

	// ShouldRegenerate is composite < threshold. The pipeline applies its
	// own slack before actually regenerating.
	ShouldRegenerate bool `json:"should_regenerate"`
}

// BlockingReasons returns only the hard failure codes.
func (r Result) BlockingReasons() []string {
	var codes []string
	for _, reason := range r.Reasons {
		if reason.Blocking {
			codes = append(codes, reason.Code)
		}
	}
	return codes
}

// ReasonCodes returns every reason code, blocking or not.
func (r Result) ReasonCodes() []string {
	codes := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, reason.Code)
	}
	return codes
}

// Context carries everything the evaluator inspects besides the text.
// Built by the pipeline from the request, the voice contract and the
// guard's repetition signals.
type Context struct {
	IntentGoal  string
	SafetyGoal  bool // safety-oriented goals skip the engagement rule
	MustInclude []string
	Avoid       []string
	// Concepts maps a must-include key to its acceptable variants
	// (synonyms included). Keys without an entry fall back to the key
	// itself with underscores as spaces.
	Concepts map[string][]string

	VoiceMarkers     []string
	ForbidFlatYesNo  bool
	LocationVocab    []string
	MissionAnchor    string
	PlayerInput      string
	MaxSentences     int
	MaxWords         int

	// Repetition signals passed in by the caller.
	GlobalEcho          bool
	OpenerRepeat        bool
	MemoryPatternRepeat bool
}

// Style penalties.
const (
	penaltyExcessSentences = 18
	penaltyExcessWords     = 10
	penaltyGenericPhrase   = 12
	penaltyMissingMarkers  = 10
	penaltyFlatYesNo       = 8
	penaltyEchoSignal      = 15
	penaltyOpenerSignal    = 10
	penaltyPatternSignal   = 12
)

// Intent penalties.
const (
	penaltyMissingGoal = 22
	penaltyAvoidTerm   = 35
)

// Anchor penalties.
const (
	penaltyWeakAnchor    = 25
	penaltyMissingAnswer = 40
)

// Humor penalty.
const penaltyNoEngagement = 30

var genericPhrases = []string{
	"as an ai",
	"i'm here to help",
	"i am here to help",
	"let me know if",
	"i understand your",
	"happy to assist",
	"great question",
}

var discourseMarkers = []string{
	"well,", "look,", "listen", "huh", "eh,", "come on", "oh,", "heh", "pfft", "tsk",
}

var stateQueryPattern = regexp.MustCompile(
	`(?i)\b(where('s| is| are)|how (much time|long|many)|what time|which way)\b`)

var directAnswerPattern = regexp.MustCompile(
	`(?i)(\d|behind|under|next to|near|inside|left|right|north|south|east|west|minute|second|at the)`)

var flatYesNoPattern = regexp.MustCompile(`(?i)\b(yes|no|yeah|nope)[.!]?$`)

// Evaluate scores a candidate reply. The composite is always in [0,100].
func Evaluate(text string, ctx Context, threshold int) Result {
	res := Result{}
	lower := strings.ToLower(text)

	style := evalStyle(text, lower, ctx, &res)
	intent := evalIntent(lower, ctx, &res)
	anchor := evalAnchor(lower, ctx, &res)
	humor := evalHumor(lower, ctx, &res)

	res.Style, res.Intent, res.Anchor, res.Humor = style, intent, anchor, humor
	composite := int(math.Round(WeightStyle*float64(style) + WeightIntent*float64(intent) +
		WeightAnchor*float64(anchor) + WeightHumor*float64(humor)))
	res.Composite = clampScore(composite)
	res.ShouldRegenerate = res.Composite < threshold
	return res
}

func evalStyle(text, lower string, ctx Context, res *Result) int {
	score := 100

	if ctx.MaxSentences > 0 && countSentences(text) > ctx.MaxSentences {
		score -= penaltyExcessSentences
		res.add("excess_sentences", true)
	}
	if ctx.MaxWords > 0 && len(strings.Fields(text)) > ctx.MaxWords {
		score -= penaltyExcessWords
		res.add("excess_words", true)
	}
	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			score -= penaltyGenericPhrase
			res.add("generic_phrasing", true)
			break
		}
	}
	if len(ctx.VoiceMarkers) > 0 && !containsAny(lower, ctx.VoiceMarkers) {
		score -= penaltyMissingMarkers
		res.add("missing_character_markers", false)
	}
	if ctx.ForbidFlatYesNo && flatYesNoPattern.MatchString(strings.TrimSpace(text)) {
		score -= penaltyFlatYesNo
		res.add("flat_yes_no_ending", true)
	}
	if ctx.GlobalEcho {
		score -= penaltyEchoSignal
		res.add("global_echo", true)
	}
	if ctx.OpenerRepeat {
		score -= penaltyOpenerSignal
		res.add("opener_repeat", true)
	}
	if ctx.MemoryPatternRepeat {
		score -= penaltyPatternSignal
		res.add("memory_pattern_repeat", true)
	}
	return clampScore(score)
}

func evalIntent(lower string, ctx Context, res *Result) int {
	score := 100
	for _, key := range ctx.MustInclude {
		if !matchesConcept(lower, key, ctx.Concepts) {
			score -= penaltyMissingGoal
			res.add("missing_goal_"+key, true)
		}
	}
	for _, term := range ctx.Avoid {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			score -= penaltyAvoidTerm
			res.add("avoid_term_hit", true)
		}
	}
	return clampScore(score)
}

func evalAnchor(lower string, ctx Context, res *Result) int {
	score := 100
	if len(ctx.LocationVocab) > 0 {
		anchored := containsAny(lower, ctx.LocationVocab)
		if !anchored && ctx.MissionAnchor != "" {
			anchored = strings.Contains(lower, strings.ToLower(ctx.MissionAnchor))
		}
		if !anchored {
			score -= penaltyWeakAnchor
			res.add("weak_location_anchor", false)
		}
	}
	if stateQueryPattern.MatchString(ctx.PlayerInput) && !directAnswerPattern.MatchString(lower) {
		score -= penaltyMissingAnswer
		res.add("missing_direct_answer", true)
	}
	return clampScore(score)
}

func evalHumor(lower string, ctx Context, res *Result) int {
	score := 100
	if ctx.SafetyGoal {
		return score
	}
	engaged := strings.ContainsAny(lower, "!?")
	if !engaged {
		engaged = containsAny(lower, discourseMarkers)
	}
	if !engaged {
		score -= penaltyNoEngagement
		res.add("missing_humor_beat", false)
	}
	return clampScore(score)
}

// matchesConcept reports whether the reply satisfies one must-include
// group: any registered variant counts, not just the literal key.
func matchesConcept(lower, key string, concepts map[string][]string) bool {
	variants := concepts[key]
	if len(variants) == 0 {
		variants = []string{strings.ReplaceAll(key, "_", " ")}
	}
	return containsAny(lower, variants)
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		terminal := r == '.' || r == '!' || r == '?' || r == '…'
		if terminal && !inRun {
			count++
		}
		inRun = terminal
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (r *Result) add(code string, blocking bool) {
	r.Reasons = append(r.Reasons, Reason{Code: code, Blocking: blocking})
}
