package content

import (
	"sort"
	"strings"

	"github.com/questline/banter-gateway/internal/novelty"
)

// Bank entries use %s for the scene location where it reads naturally.

var vexBank = []novelty.BankEntry{
	{ID: "vex_vault_night", Category: "war_story", Pattern: "brag", Stem: "last time",
		Text: "Last time I cracked a vault like this, the guard slept through the whole thing. Standards, darling, standards!"},
	{ID: "vex_wine_cellar", Category: "war_story", Pattern: "self_deprecate", Stem: "i once",
		Text: "I once spent three hours in a wine cellar for nothing but a cheap merlot. The %s smells better already, honestly."},
	{ID: "vex_needle", Category: "advice", Pattern: "tease", Stem: "subtlety",
		Text: "Subtlety, sweetheart. We're a needle, not a hammer. Do keep up!"},
	{ID: "vex_cameras", Category: "scene_read", Pattern: "observe", Stem: "cameras",
		Text: "Cameras sweep the %s every forty seconds, darling. Plenty of time, if you stop dawdling."},
	{ID: "vex_alarm_joke", Category: "mockery", Pattern: "tease", Stem: "alarms",
		Text: "Alarms are just applause we haven't earned yet. Lovely acoustics in the %s, though!"},
	{ID: "vex_exit_plan", Category: "advice", Pattern: "plan", Stem: "exits",
		Text: "Exits first, heroics never. That's rule one, and honestly rule two as well."},
	{ID: "vex_old_partner", Category: "war_story", Pattern: "nostalgia", Stem: "my old",
		Text: "My old partner tried improvising once. Lovely funeral. We stick to the plan, darling?"},
	{ID: "vex_style", Category: "mockery", Pattern: "brag", Stem: "style",
		Text: "We could stumble out the front door, or we could do this with style. Honestly, why do I even ask?"},
}

var brickBank = []novelty.BankEntry{
	{ID: "brick_door", Category: "muscle", Pattern: "offer", Stem: "door",
		Text: "That door's got hinges. Hinges break. Easy. Say the word, boss."},
	{ID: "brick_quiet", Category: "complaint", Pattern: "grumble", Stem: "quiet",
		Text: "All this sneakin'. My knuckles are gettin' bored, boss."},
	{ID: "brick_guard", Category: "scene_read", Pattern: "observe", Stem: "guard",
		Text: "Guard by the %s looks heavy. Not heavier than me. Simple math."},
	{ID: "brick_plan", Category: "muscle", Pattern: "offer", Stem: "plan",
		Text: "Plans are good. Smashin' is better. I can do both, easy."},
	{ID: "brick_lunch", Category: "complaint", Pattern: "grumble", Stem: "lunch",
		Text: "We done soon, boss? Smash-and-grab's better on a full stomach."},
}

var defaultBank = []novelty.BankEntry{
	{ID: "gen_hold", Category: "advice", Pattern: "steady", Stem: "hold",
		Text: "Hold position. We move when it's clear."},
	{ID: "gen_watch", Category: "scene_read", Pattern: "observe", Stem: "watch",
		Text: "Keep your eyes on the %s. Something's off."},
	{ID: "gen_focus", Category: "advice", Pattern: "steady", Stem: "focus",
		Text: "Focus on the job. Questions later."},
}

// =============================================================================
// RETRIEVAL EXAMPLES
// =============================================================================

// Example is one reference line for prompt retrieval.
type Example struct {
	Speaker  string
	Location string
	Keywords []string
	Text     string
}

var examples = []Example{
	{Speaker: "vex", Location: "vault", Keywords: []string{"lock", "safe", "crack"},
		Text: "A tumbler lock, darling? They're practically begging us."},
	{Speaker: "vex", Location: "lobby", Keywords: []string{"guard", "patrol"},
		Text: "Two guards, one coffee between them. Tragic, honestly."},
	{Speaker: "vex", Location: "rooftop", Keywords: []string{"wind", "cable", "drop"},
		Text: "Mind the drop, sweetheart. Gravity has no sense of humor."},
	{Speaker: "vex", Location: "", Keywords: []string{"alarm", "loud"},
		Text: "If the alarm sings, we dance. Quickly, and towards the exit."},
	{Speaker: "brick", Location: "vault", Keywords: []string{"door", "steel"},
		Text: "Steel door. Thick. Gimme four minutes and an aspirin, boss."},
	{Speaker: "brick", Location: "lobby", Keywords: []string{"guard", "fight"},
		Text: "Big fella by the desk. I seen bigger. Once."},
	{Speaker: "brick", Location: "", Keywords: []string{"plan", "wait"},
		Text: "Waitin's fine. Door's still gonna be there when we're done waitin'."},
	{Speaker: "", Location: "", Keywords: []string{"mission", "objective"},
		Text: "Objective first. Everything else is noise."},
}

// Retrieve returns up to n example lines for a speaker, preferring matches
// on scene location and prompt keywords. Generic examples (empty speaker)
// fill remaining slots.
func Retrieve(speaker, location string, keywords []string, n int) []string {
	if n <= 0 {
		return nil
	}
	type scored struct {
		text  string
		score int
		order int
	}
	var candidates []scored
	for i, ex := range examples {
		if ex.Speaker != "" && ex.Speaker != speaker {
			continue
		}
		score := 0
		if ex.Speaker == speaker {
			score += 3
		}
		if ex.Location != "" && strings.EqualFold(ex.Location, location) {
			score += 4
		}
		for _, kw := range keywords {
			for _, exKw := range ex.Keywords {
				if strings.EqualFold(kw, exKw) {
					score += 2
				}
			}
		}
		candidates = append(candidates, scored{text: ex.Text, score: score, order: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})
	out := make([]string, 0, n)
	for _, c := range candidates {
		if len(out) == n {
			break
		}
		out = append(out, c.text)
	}
	return out
}

// =============================================================================
// INTENT CONCEPTS
// =============================================================================

// IntentConcepts maps must-include goal keys to acceptable variants,
// synonyms included. The evaluator falls back to the literal key for
// unknown entries.
var IntentConcepts = map[string][]string{
	"guard_position": {"guard", "sentry", "patrol", "watchman", "lookout"},
	"time_pressure":  {"time", "clock", "minute", "second", "hurry", "ticking"},
	"exit_route":     {"exit", "way out", "door", "route", "stairs", "window"},
	"stay_quiet":     {"quiet", "silent", "hush", "low", "sneak", "softly"},
	"objective":      {"objective", "job", "target", "prize", "mission", "goal"},
	"danger":         {"danger", "risky", "careful", "trouble", "heat", "alarm"},
	"reassure":       {"fine", "easy", "got this", "relax", "breathe", "covered"},
}

// LocationVocab maps a scene location to vocabulary a grounded reply is
// expected to touch.
var LocationVocab = map[string][]string{
	"vault":   {"vault", "lock", "steel", "tumbler", "safe", "door"},
	"lobby":   {"lobby", "desk", "guard", "camera", "marble", "entrance"},
	"rooftop": {"roof", "rooftop", "cable", "wind", "drop", "edge", "sky"},
	"sewer":   {"sewer", "tunnel", "water", "smell", "pipe", "grate"},
	"archive": {"archive", "shelf", "file", "dust", "records", "paper"},
}
