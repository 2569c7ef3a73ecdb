// Package content provides per-speaker voice material: contracts, voice
// transforms, deterministic content banks, retrieval examples and the
// safety checker.
//
// DESIGN: The pipeline never branches on speaker identity by string.
// Speaker behavior is looked up in a Registry mapping id -> Profile;
// unknown speakers get a default profile with no-op transforms and a small
// generic bank, so every path works for every id.
package content

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/questline/banter-gateway/internal/novelty"
)

// SceneInfo is the slice of game state the voice layer cares about.
type SceneInfo struct {
	Location         string
	TimeRemainingSec int
	AlarmLevel       int
}

// VoiceContract defines what the evaluator expects of a speaker's voice.
type VoiceContract struct {
	StyleMarkers    []string
	MissionAware    bool
	ForbidFlatYesNo bool
}

// Profile is the per-speaker behavior bundle.
type Profile interface {
	ID() string
	Contract() VoiceContract

	// VoiceTransform applies speaker- and scene-specific formatting to a
	// reply. Runs on every response path, including cache hits.
	VoiceTransform(text string, scene SceneInfo) string

	// Bank returns the deterministic content bank (template incidents and
	// punchlines). May be empty.
	Bank() []novelty.BankEntry

	// FingerprintPattern is the expected lexical fingerprint used for
	// voice-separation checking; nil disables the check.
	FingerprintPattern() *regexp.Regexp

	ForbiddenPhrases() []string

	// SmallBank marks speakers whose bank is small/high-collision; the
	// guard tightens the global echo threshold for them.
	SmallBank() bool

	// RefusalLine is the fixed reply for safety violations.
	RefusalLine() string
}

// Registry maps speaker ids to profiles.
type Registry struct {
	profiles map[string]Profile
	fallback Profile
}

// NewRegistry creates a registry with the built-in speakers registered.
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
		fallback: &defaultProfile{},
	}
	r.Register(newVexProfile())
	r.Register(newBrickProfile())
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.profiles[p.ID()] = p
}

// Lookup returns the profile for a speaker, or the default profile.
func (r *Registry) Lookup(speaker string) Profile {
	if p, ok := r.profiles[speaker]; ok {
		return p
	}
	return r.fallback
}

// Synthesize builds an in-character fallback line deterministically from
// the speaker's bank, avoiding recently used material via mem. Returns the
// picked entry so the caller can update style memory.
func (r *Registry) Synthesize(speaker string, scene SceneInfo, seed string, mem *novelty.StyleMemory) (string, novelty.BankEntry) {
	profile := r.Lookup(speaker)
	entry, ok := novelty.Pick(profile.Bank(), seed, mem)
	if !ok {
		line := profile.VoiceTransform("Stay sharp. We keep moving.", scene)
		return line, novelty.BankEntry{}
	}
	line := entry.Text
	if scene.Location != "" && strings.Contains(line, "%s") {
		line = fmt.Sprintf(line, scene.Location)
	}
	return profile.VoiceTransform(line, scene), entry
}

// =============================================================================
// DEFAULT PROFILE
// =============================================================================

type defaultProfile struct{}

func (p *defaultProfile) ID() string { return "default" }

func (p *defaultProfile) Contract() VoiceContract {
	return VoiceContract{MissionAware: true}
}

func (p *defaultProfile) VoiceTransform(text string, _ SceneInfo) string { return text }

func (p *defaultProfile) Bank() []novelty.BankEntry { return defaultBank }

func (p *defaultProfile) FingerprintPattern() *regexp.Regexp { return nil }

func (p *defaultProfile) ForbiddenPhrases() []string { return nil }

func (p *defaultProfile) SmallBank() bool { return true }

func (p *defaultProfile) RefusalLine() string {
	return "Not touching that one. Back to the job."
}

// =============================================================================
// VEX - sardonic fixer on comms
// =============================================================================

type vexProfile struct {
	fingerprint *regexp.Regexp
}

func newVexProfile() *vexProfile {
	return &vexProfile{
		fingerprint: regexp.MustCompile(`(darling|sweetheart|honestly|style|lovely|do keep up)`),
	}
}

func (p *vexProfile) ID() string { return "vex" }

func (p *vexProfile) Contract() VoiceContract {
	return VoiceContract{
		StyleMarkers:    []string{"darling", "sweetheart", "honestly", "lovely"},
		MissionAware:    true,
		ForbidFlatYesNo: true,
	}
}

func (p *vexProfile) VoiceTransform(text string, scene SceneInfo) string {
	// Vex never says "OK"; too pedestrian.
	text = strings.ReplaceAll(text, "OK", "fine")
	text = strings.ReplaceAll(text, "okay", "fine")
	if scene.TimeRemainingSec > 0 && scene.TimeRemainingSec <= 60 &&
		!strings.Contains(strings.ToLower(text), "clock") {
		text = strings.TrimRight(text, " ") + " Clock's ticking, darling."
	}
	return text
}

func (p *vexProfile) Bank() []novelty.BankEntry { return vexBank }

func (p *vexProfile) FingerprintPattern() *regexp.Regexp { return p.fingerprint }

func (p *vexProfile) ForbiddenPhrases() []string {
	return []string{"at the end of the day", "easy peasy", "no problemo"}
}

func (p *vexProfile) SmallBank() bool { return false }

func (p *vexProfile) RefusalLine() string {
	return "Darling, no. Some doors stay shut, even for us. Eyes on the job."
}

// =============================================================================
// BRICK - blunt heavy, allergic to subtlety
// =============================================================================

type brickProfile struct {
	fingerprint *regexp.Regexp
}

func newBrickProfile() *brickProfile {
	return &brickProfile{
		fingerprint: regexp.MustCompile(`(boss|door|smash|easy|simple|punch|heavy)`),
	}
}

func (p *brickProfile) ID() string { return "brick" }

func (p *brickProfile) Contract() VoiceContract {
	return VoiceContract{
		StyleMarkers: []string{"boss", "easy", "smash"},
		MissionAware: true,
	}
}

func (p *brickProfile) VoiceTransform(text string, scene SceneInfo) string {
	// Brick keeps it short and concrete.
	text = strings.ReplaceAll(text, "perhaps", "maybe")
	text = strings.ReplaceAll(text, "utilize", "use")
	if scene.AlarmLevel >= 2 && !strings.Contains(strings.ToLower(text), "loud") {
		text = strings.TrimRight(text, " ") + " Gettin' loud in here, boss."
	}
	return text
}

func (p *brickProfile) Bank() []novelty.BankEntry { return brickBank }

func (p *brickProfile) FingerprintPattern() *regexp.Regexp { return p.fingerprint }

func (p *brickProfile) ForbiddenPhrases() []string {
	return []string{"think outside the box", "low-hanging fruit"}
}

// Brick's bank is short; echo detection runs tighter for him.
func (p *brickProfile) SmallBank() bool { return true }

func (p *brickProfile) RefusalLine() string {
	return "Nah. Brick don't do that. Pick somethin' else, boss."
}
