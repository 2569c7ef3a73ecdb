// Package engine - prompt.go builds provider prompts.
//
// DESIGN: Prompts are assembled from the speaker contract, the scene,
// the intent goals and a handful of retrieved example lines, then
// trimmed against a token budget. Example lines go first when trimming;
// the contract and the player input are never dropped.
package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/questline/banter-gateway/internal/content"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// countTokens measures a prompt with the cl100k_base encoding. If the
// encoder cannot be initialized the byte/4 estimate keeps trimming
// functional instead of failing the request.
func countTokens(text string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken init failed, using byte estimate")
			return
		}
		encoder = enc
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}

// buildPrompt renders the generation prompt for rc, respecting the
// configured token budget.
func buildPrompt(rc *requestContext, budget int) string {
	examples := content.Retrieve(rc.req.CharacterID, rc.scene.Location,
		keywords(rc.req.PlayerInput), rc.exampleCount)

	for {
		prompt := renderPrompt(rc, examples)
		if countTokens(prompt) <= budget || len(examples) == 0 {
			return prompt
		}
		examples = examples[:len(examples)-1]
	}
}

// buildRewritePrompt extends the original prompt with the concrete
// failures of the first attempt so the model corrects instead of rerolls.
func buildRewritePrompt(rc *requestContext, budget int, firstText string, reasons []string) string {
	base := buildPrompt(rc, budget)
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYour previous reply was rejected:\n")
	fmt.Fprintf(&b, "  %q\n", firstText)
	if len(reasons) > 0 {
		b.WriteString("Problems: " + strings.Join(reasons, ", ") + "\n")
	}
	b.WriteString("Write a different reply. Do not reuse the opening words or the same joke.")
	return b.String()
}

func renderPrompt(rc *requestContext, examples []string) string {
	req := rc.req
	contract := rc.profile.Contract()
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, an NPC crew member in a heist. Stay in character.\n", req.CharacterID)
	if req.IntentCtx.CharacterContract != "" {
		b.WriteString("Voice: " + req.IntentCtx.CharacterContract + "\n")
	} else if len(contract.StyleMarkers) > 0 {
		b.WriteString("Voice markers: " + strings.Join(contract.StyleMarkers, ", ") + "\n")
	}
	fmt.Fprintf(&b, "Scene: location=%s time_remaining=%ds alarm=%d\n",
		rc.scene.Location, rc.scene.TimeRemainingSec, rc.scene.AlarmLevel)
	if len(req.CurrentCtx.SceneFlags) > 0 {
		b.WriteString("Flags: " + strings.Join(req.CurrentCtx.SceneFlags, ", ") + "\n")
	}
	if req.MissionProgression != "" {
		b.WriteString("Mission: " + req.MissionProgression + "\n")
	}
	if req.NPCMemoryCard != "" {
		b.WriteString("You remember: " + req.NPCMemoryCard + "\n")
	}

	b.WriteString("\nGoal: " + req.IntentCtx.Goal + "\n")
	if len(req.IntentCtx.MustInclude) > 0 {
		b.WriteString("Must cover: " + strings.Join(req.IntentCtx.MustInclude, ", ") + "\n")
	}
	if len(req.IntentCtx.Avoid) > 0 {
		b.WriteString("Never mention: " + strings.Join(req.IntentCtx.Avoid, ", ") + "\n")
	}

	if len(examples) > 0 {
		b.WriteString("\nLines in your voice:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "  - %s\n", ex)
		}
	}

	if len(rc.recentTurns) > 0 {
		b.WriteString("\nYour recent lines (do not repeat these):\n")
		for _, t := range rc.recentTurns {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}

	fmt.Fprintf(&b, "\nPlayer says: %q\n", req.PlayerInput)
	fmt.Fprintf(&b, "Reply in at most %d sentences, under %d characters. Answer the player directly first.\n",
		rc.maxSentences, rc.maxChars)
	return b.String()
}

// keywords extracts lowercase content words from the player input for
// example retrieval.
func keywords(input string) []string {
	fields := strings.Fields(strings.ToLower(input))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > 3 {
			out = append(out, f)
		}
	}
	return out
}
