package evaluate

import "testing"

func baseContext() Context {
	return Context{
		IntentGoal:   "warn about the guard",
		VoiceMarkers: []string{"darling", "honestly"},
		MaxSentences: 2,
		MaxWords:     45,
	}
}

func TestEvaluateCleanReply(t *testing.T) {
	res := Evaluate("Honestly darling, the guard just turned left!", baseContext(), 70)
	if res.Composite != 100 {
		t.Fatalf("composite = %d, want 100; reasons %v", res.Composite, res.Reasons)
	}
	if res.ShouldRegenerate {
		t.Fatal("clean reply should not regenerate")
	}
	if len(res.BlockingReasons()) != 0 {
		t.Fatalf("blocking reasons = %v, want none", res.BlockingReasons())
	}
}

func TestEvaluateCompositeBounds(t *testing.T) {
	ctx := baseContext()
	ctx.MustInclude = []string{"guard_position", "time_pressure", "exit_route", "stay_quiet"}
	ctx.Avoid = []string{"the"}
	ctx.ForbidFlatYesNo = true
	ctx.GlobalEcho = true
	ctx.OpenerRepeat = true
	ctx.MemoryPatternRepeat = true
	ctx.LocationVocab = []string{"vault"}
	ctx.PlayerInput = "where's the exit"

	// Fails nearly every rule at once.
	res := Evaluate("as an ai i understand your in the situation yes", ctx, 70)
	if res.Composite < 0 || res.Composite > 100 {
		t.Fatalf("composite = %d, out of [0,100]", res.Composite)
	}
	if !res.ShouldRegenerate {
		t.Fatal("terrible reply should regenerate")
	}
}

func TestEvaluateMissingGoalConcepts(t *testing.T) {
	ctx := baseContext()
	ctx.MustInclude = []string{"exit_route"}
	ctx.Concepts = map[string][]string{
		"exit_route": {"exit", "way out", "stairs"},
	}

	res := Evaluate("Take the stairs behind the desk, darling!", ctx, 70)
	for _, code := range res.ReasonCodes() {
		if code == "missing_goal_exit_route" {
			t.Fatal("synonym should satisfy the concept group")
		}
	}

	res = Evaluate("Hide and wait for my signal, darling!", ctx, 70)
	found := false
	for _, code := range res.ReasonCodes() {
		if code == "missing_goal_exit_route" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing_goal_exit_route, got %v", res.ReasonCodes())
	}
	if res.Intent != 100-penaltyMissingGoal {
		t.Fatalf("intent = %d, want %d", res.Intent, 100-penaltyMissingGoal)
	}
}

func TestEvaluateConceptFallbackToKey(t *testing.T) {
	ctx := baseContext()
	ctx.MustInclude = []string{"back_door"}

	// No registered variants: the literal key with spaces must match.
	res := Evaluate("The back door is open, darling!", ctx, 70)
	for _, code := range res.ReasonCodes() {
		if code == "missing_goal_back_door" {
			t.Fatal("literal key fallback should have matched")
		}
	}
}

func TestEvaluateAvoidTermBlocks(t *testing.T) {
	ctx := baseContext()
	ctx.Avoid = []string{"plan b"}
	res := Evaluate("Honestly darling, time for plan B!", ctx, 70)

	blocking := res.BlockingReasons()
	if len(blocking) != 1 || blocking[0] != "avoid_term_hit" {
		t.Fatalf("blocking = %v, want [avoid_term_hit]", blocking)
	}
	if res.Intent != 100-penaltyAvoidTerm {
		t.Fatalf("intent = %d, want %d", res.Intent, 100-penaltyAvoidTerm)
	}
}

func TestEvaluateDirectAnswerRule(t *testing.T) {
	ctx := baseContext()
	ctx.PlayerInput = "how much time do we have left"

	res := Evaluate("Honestly darling, who can say!", ctx, 70)
	found := false
	for _, code := range res.BlockingReasons() {
		if code == "missing_direct_answer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing_direct_answer, got %v", res.Reasons)
	}

	res = Evaluate("Four minutes, darling, so move!", ctx, 70)
	for _, code := range res.ReasonCodes() {
		if code == "missing_direct_answer" {
			t.Fatal("numeric answer should satisfy a state query")
		}
	}
}

func TestEvaluateFlatYesNo(t *testing.T) {
	ctx := baseContext()
	ctx.ForbidFlatYesNo = true
	res := Evaluate("Honestly darling? Yes.", ctx, 70)
	found := false
	for _, code := range res.BlockingReasons() {
		if code == "flat_yes_no_ending" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected flat_yes_no_ending, got %v", res.Reasons)
	}
}

func TestEvaluateNonBlockingReasonsOnly(t *testing.T) {
	ctx := baseContext()
	ctx.LocationVocab = []string{"vault", "steel"}

	// Missing markers, weak anchor and no humor beat are all soft.
	res := Evaluate("Keep moving and stay behind me.", ctx, 70)
	if len(res.BlockingReasons()) != 0 {
		t.Fatalf("blocking = %v, want none", res.BlockingReasons())
	}
	if len(res.Reasons) == 0 {
		t.Fatal("expected soft reasons to be reported")
	}
}

func TestEvaluateSafetyGoalSkipsEngagement(t *testing.T) {
	ctx := baseContext()
	ctx.SafetyGoal = true
	res := Evaluate("Stay down and do not move, darling.", ctx, 70)
	if res.Humor != 100 {
		t.Fatalf("humor = %d, want 100 for safety goal", res.Humor)
	}
}

func TestEvaluateSentenceAndWordBudgets(t *testing.T) {
	ctx := baseContext()
	res := Evaluate("One, darling! Two! Three!", ctx, 70)
	if res.Style != 100-penaltyExcessSentences {
		t.Fatalf("style = %d, want %d", res.Style, 100-penaltyExcessSentences)
	}
}
