package novelty

import (
	"regexp"
	"strings"
)

// Similarity thresholds for the guard signals.
const (
	RepetitiveThreshold = 0.74
	StaleThreshold      = 0.66
	EchoThreshold       = 0.70
	// Speakers with small, high-collision content banks get a tighter
	// echo threshold.
	EchoThresholdTight = 0.64
)

// Flags are the independent repetition signals for one candidate reply.
type Flags struct {
	Repetitive          bool
	Stale               bool
	GlobalEcho          bool
	OpenerRepeat        bool
	Cliche              bool
	VoiceSeparationFail bool
}

// Any reports whether any signal fired.
func (f Flags) Any() bool {
	return f.Repetitive || f.Stale || f.GlobalEcho || f.OpenerRepeat ||
		f.Cliche || f.VoiceSeparationFail
}

// Reasons returns the fired signals as stable reason codes.
func (f Flags) Reasons() []string {
	var reasons []string
	if f.Repetitive {
		reasons = append(reasons, "repetitive")
	}
	if f.Stale {
		reasons = append(reasons, "stale")
	}
	if f.GlobalEcho {
		reasons = append(reasons, "global_echo")
	}
	if f.OpenerRepeat {
		reasons = append(reasons, "opener_repeat")
	}
	if f.Cliche {
		reasons = append(reasons, "cliche")
	}
	if f.VoiceSeparationFail {
		reasons = append(reasons, "voice_separation_fail")
	}
	return reasons
}

// Input is everything the guard inspects for one candidate.
type Input struct {
	Text         string
	RecentTurns  []string // same speaker, oldest first
	GlobalRecent []string
	Memory       *StyleMemory

	ForbiddenPhrases []string
	// VoicePattern is the speaker's expected lexical fingerprint. A nil
	// pattern disables voice-separation checking.
	VoicePattern *regexp.Regexp
	// TightEcho selects the stricter global echo threshold.
	TightEcho bool
}

// Check computes all guard signals for one candidate reply.
func Check(in Input) Flags {
	var flags Flags

	lastTwo := in.RecentTurns
	if len(lastTwo) > 2 {
		lastTwo = lastTwo[len(lastTwo)-2:]
	}
	opener := OpenerKey(in.Text)
	for _, turn := range lastTwo {
		sim := Similarity(in.Text, turn)
		if sim >= RepetitiveThreshold {
			flags.Repetitive = true
		}
		if sim >= StaleThreshold || (opener != "" && opener == OpenerKey(turn)) {
			flags.Stale = true
		}
	}

	echoAt := EchoThreshold
	if in.TightEcho {
		echoAt = EchoThresholdTight
	}
	for _, line := range in.GlobalRecent {
		if Similarity(in.Text, line) >= echoAt {
			flags.GlobalEcho = true
			break
		}
	}

	if in.Memory != nil && in.Memory.SeenOpener(opener) {
		flags.OpenerRepeat = true
	}

	lower := strings.ToLower(in.Text)
	for _, phrase := range in.ForbiddenPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			flags.Cliche = true
			break
		}
	}

	if in.VoicePattern != nil && !in.VoicePattern.MatchString(lower) {
		flags.VoiceSeparationFail = true
	}

	return flags
}
