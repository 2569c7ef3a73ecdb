package novelty

import (
	"fmt"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "the vault door is open", "the vault door is open", 1.0},
		{"disjoint", "alpha bravo charlie", "delta echo foxtrot", 0.0},
		{"both empty", "", "", 1.0},
		{"one empty", "something", "", 0.0},
		{"case and punctuation ignored", "The VAULT, door!", "the vault door", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); got != tt.want {
				t.Fatalf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarityPartialOverlap(t *testing.T) {
	// 3 shared tokens, 5 distinct total: 3/5.
	got := Similarity("guard by the door", "guard by the window")
	if got <= 0.5 || got >= 0.7 {
		t.Fatalf("Similarity = %v, want in (0.5, 0.7)", got)
	}
}

func TestOpenerKey(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Last time I cracked a vault", "last time i"},
		{"Two words", "two words"},
		{"", ""},
		{"Hold, position. Now!", "hold position now"},
	}
	for _, tt := range tests {
		if got := OpenerKey(tt.text); got != tt.want {
			t.Fatalf("OpenerKey(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestCheckRepetitiveAndStale(t *testing.T) {
	flags := Check(Input{
		Text:        "the guard is by the vault door now",
		RecentTurns: []string{"the guard is by the vault door now"},
	})
	if !flags.Repetitive {
		t.Fatal("expected Repetitive for identical recent turn")
	}
	if !flags.Stale {
		t.Fatal("expected Stale for identical recent turn")
	}
}

func TestCheckStaleViaOpenerOnly(t *testing.T) {
	// Same opener, otherwise different content.
	flags := Check(Input{
		Text:        "Last time I told a completely different story about boats",
		RecentTurns: []string{"Last time I went through a window with zero grace"},
	})
	if flags.Repetitive {
		t.Fatal("did not expect Repetitive for low overall similarity")
	}
	if !flags.Stale {
		t.Fatal("expected Stale for matching opener key")
	}
}

func TestCheckIgnoresOlderTurns(t *testing.T) {
	// Only the last two turns are compared; an identical turn three back
	// does not fire.
	flags := Check(Input{
		Text: "watch the cameras near the desk",
		RecentTurns: []string{
			"watch the cameras near the desk",
			"the stairwell is clear for now",
			"someone cut the lights on two",
		},
	})
	if flags.Repetitive || flags.Stale {
		t.Fatalf("expected no flags for turn outside window, got %+v", flags)
	}
}

func TestCheckGlobalEchoTightThreshold(t *testing.T) {
	in := Input{
		Text:         "guard by the big door tonight",
		GlobalRecent: []string{"guard by the big door today"},
	}
	// 5 shared / 7 total ~= 0.71: above the loose threshold.
	if got := Check(in); !got.GlobalEcho {
		t.Fatal("expected GlobalEcho at loose threshold")
	}

	// 6 shared / 9 total ~= 0.67: fires only in tight mode.
	in.Text = "guard by the big door tonight friend"
	in.GlobalRecent = []string{"guard by the big door tonight maybe later"}
	if got := Check(in); got.GlobalEcho {
		t.Fatal("did not expect GlobalEcho below loose threshold")
	}
	in.TightEcho = true
	if got := Check(in); !got.GlobalEcho {
		t.Fatal("expected GlobalEcho in tight mode")
	}
}

func TestCheckClicheAndVoice(t *testing.T) {
	flags := Check(Input{
		Text:             "At the end of the day we just walk out",
		ForbiddenPhrases: []string{"at the end of the day"},
	})
	if !flags.Cliche {
		t.Fatal("expected Cliche for forbidden phrase")
	}

	mem := NewStyleMemory()
	mem.RememberOpener("hold position now, people", 5)
	flags = Check(Input{Text: "Hold position now. The van is late.", Memory: mem})
	if !flags.OpenerRepeat {
		t.Fatal("expected OpenerRepeat from style memory")
	}
}

func TestCheckAnyAndReasons(t *testing.T) {
	var flags Flags
	if flags.Any() {
		t.Fatal("zero flags should not be Any")
	}
	if got := flags.Reasons(); len(got) != 0 {
		t.Fatalf("Reasons() = %v, want empty", got)
	}
	flags.Stale = true
	flags.GlobalEcho = true
	got := flags.Reasons()
	if len(got) != 2 || got[0] != "stale" || got[1] != "global_echo" {
		t.Fatalf("Reasons() = %v, want [stale global_echo]", got)
	}
}

func TestPickDeterministic(t *testing.T) {
	bank := []BankEntry{
		{ID: "a", Category: "c1", Pattern: "p1", Text: "line a"},
		{ID: "b", Category: "c2", Pattern: "p2", Text: "line b"},
		{ID: "c", Category: "c3", Pattern: "p3", Text: "line c"},
	}
	seed := Seed("vex", "open the door", 120, 1)

	first, ok := Pick(bank, seed, NewStyleMemory())
	if !ok {
		t.Fatal("Pick returned no entry")
	}
	for i := 0; i < 10; i++ {
		again, _ := Pick(bank, seed, NewStyleMemory())
		if again.ID != first.ID {
			t.Fatalf("Pick not deterministic: %q then %q", first.ID, again.ID)
		}
	}
}

func TestPickAvoidsRecentMaterial(t *testing.T) {
	bank := []BankEntry{
		{ID: "a", Category: "c1", Pattern: "p1", Text: "line a"},
		{ID: "b", Category: "c2", Pattern: "p2", Text: "line b"},
	}
	seed := Seed("brick", "what now", 90, 0)
	first, _ := Pick(bank, seed, NewStyleMemory())

	mem := NewStyleMemory()
	mem.RememberBank(first, 5)
	second, ok := Pick(bank, seed, mem)
	if !ok {
		t.Fatal("Pick returned no entry")
	}
	if second.ID == first.ID {
		t.Fatalf("Pick repeated %q despite memory", first.ID)
	}
}

func TestPickAvoidsRecentStem(t *testing.T) {
	// Distinct categories and patterns; only the stem collides.
	bank := []BankEntry{
		{ID: "a", Category: "c1", Pattern: "p1", Stem: "last time", Text: "line a"},
		{ID: "b", Category: "c2", Pattern: "p2", Stem: "i once", Text: "line b"},
	}
	seed := Seed("vex", "what now", 90, 0)
	first, _ := Pick(bank, seed, NewStyleMemory())

	mem := NewStyleMemory()
	mem.RememberBank(first, 5)
	second, ok := Pick(bank, seed, mem)
	if !ok {
		t.Fatal("Pick returned no entry")
	}
	if second.Stem == first.Stem {
		t.Fatalf("Pick reused stem %q despite memory", first.Stem)
	}
}

func TestSeenStemOpening(t *testing.T) {
	mem := NewStyleMemory()
	mem.RememberBank(BankEntry{ID: "a", Category: "war_story", Pattern: "brag", Stem: "last time"}, 5)

	if !mem.SeenStemOpening("Last time I cracked a vault, it sang.") {
		t.Fatal("reply opening with a remembered stem must be flagged")
	}
	if mem.SeenStemOpening("The vault sang last time, though.") {
		t.Fatal("stem mid-sentence is not an opening reuse")
	}
	if mem.SeenStemOpening("Fresh material entirely.") {
		t.Fatal("unrelated reply must not be flagged")
	}
	if NewStyleMemory().SeenStemOpening("Last time again.") {
		t.Fatal("empty memory must not flag anything")
	}
}

func TestPickExhaustedBankStillReturns(t *testing.T) {
	bank := []BankEntry{
		{ID: "a", Category: "c1", Pattern: "p1", Text: "line a"},
		{ID: "b", Category: "c2", Pattern: "p2", Text: "line b"},
	}
	mem := NewStyleMemory()
	for _, e := range bank {
		mem.RememberBank(e, 5)
	}
	if _, ok := Pick(bank, "seed", mem); !ok {
		t.Fatal("Pick must return an entry even when everything collides")
	}
	if _, ok := Pick(nil, "seed", mem); ok {
		t.Fatal("Pick on empty bank should report no entry")
	}
}

func TestStyleMemoryDepth(t *testing.T) {
	mem := NewStyleMemory()
	for i := 0; i < 8; i++ {
		mem.RememberOpener(fmt.Sprintf("opener number %d goes here", i), 5)
	}
	if len(mem.RecentOpenerKeys) != 5 {
		t.Fatalf("opener keys = %d, want 5", len(mem.RecentOpenerKeys))
	}
	if mem.SeenOpener("opener number 0") {
		t.Fatal("oldest opener should have aged out")
	}
	if !mem.SeenOpener("opener number 7") {
		t.Fatal("newest opener should be remembered")
	}
}

func TestRecentRingCap(t *testing.T) {
	ring := NewRecentRing(3)
	for i := 0; i < 5; i++ {
		ring.Push(fmt.Sprintf("line %d", i))
	}
	got := ring.Snapshot()
	if len(got) != 3 {
		t.Fatalf("ring length = %d, want 3", len(got))
	}
	if got[0] != "line 2" || got[2] != "line 4" {
		t.Fatalf("ring snapshot = %v, want oldest line 2, newest line 4", got)
	}
}
