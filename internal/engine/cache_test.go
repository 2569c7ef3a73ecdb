package engine

import (
	"context"
	"testing"
	"time"
)

func TestRegistryLookupTTL(t *testing.T) {
	r := newRegistry(time.Minute)
	now := time.Now()
	r.Store("fp1", "vex", cachedContent{Text: "hello"}, now)

	if got, ok := r.Lookup("fp1", now.Add(30*time.Second)); !ok || got.Text != "hello" {
		t.Fatalf("Lookup = %+v/%v, want fresh hit", got, ok)
	}
	if _, ok := r.Lookup("fp1", now.Add(2*time.Minute)); ok {
		t.Fatal("expected expired entry to miss")
	}
	// Lazy eviction removed it.
	if cached, _ := r.Sizes(); cached != 0 {
		t.Fatalf("cache size = %d, want 0 after lazy eviction", cached)
	}
}

func TestRegistryAcquireOrJoin(t *testing.T) {
	r := newRegistry(time.Minute)

	task, owner := r.AcquireOrJoin("fp1")
	if !owner {
		t.Fatal("first caller must own the slot")
	}
	joined, second := r.AcquireOrJoin("fp1")
	if second {
		t.Fatal("second caller must join, not own")
	}
	if joined != task {
		t.Fatal("joiner must receive the owner's task")
	}

	r.Settle("fp1", task, &cachedContent{Text: "done"}, nil)
	select {
	case <-task.done:
	default:
		t.Fatal("Settle must close the done channel")
	}
	if task.resp == nil || task.resp.Text != "done" {
		t.Fatalf("task resp = %+v", task.resp)
	}

	// Slot freed: the next caller owns again.
	if _, owner := r.AcquireOrJoin("fp1"); !owner {
		t.Fatal("slot must be free after Settle")
	}
}

func TestRegistryInvalidateSpeaker(t *testing.T) {
	r := newRegistry(time.Minute)
	now := time.Now()
	r.Store("fp1", "vex", cachedContent{Text: "a"}, now)
	r.Store("fp2", "vex", cachedContent{Text: "b"}, now)
	r.Store("fp3", "brick", cachedContent{Text: "c"}, now)

	if n := r.InvalidateSpeaker("vex"); n != 2 {
		t.Fatalf("evicted = %d, want 2", n)
	}
	if _, ok := r.Lookup("fp3", now); !ok {
		t.Fatal("other speaker's entry must survive")
	}
}

func TestThrottleSpacesCallers(t *testing.T) {
	gate := newThrottle(30 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least two intervals", elapsed)
	}
}

func TestThrottleRespectsContext(t *testing.T) {
	gate := newThrottle(time.Minute)
	_ = gate.Wait(context.Background()) // consume the free slot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := gate.Wait(ctx); err == nil {
		t.Fatal("expected context error while waiting for a slot")
	}
}

func TestCooldownExponentialGrowth(t *testing.T) {
	var cd cooldownState
	base := 1200 * time.Millisecond
	ceiling := 5 * time.Minute
	now := time.Now()

	tests := []time.Duration{
		1200 * time.Millisecond, // n=1
		2400 * time.Millisecond, // n=2
		4800 * time.Millisecond, // n=3
		9600 * time.Millisecond, // n=4
	}
	for i, want := range tests {
		if got := cd.recordQuotaFailure(base, ceiling, now); got != want {
			t.Fatalf("failure %d: cooldown = %v, want %v", i+1, got, want)
		}
	}

	// 9 consecutive failures: 1200ms * 2^8 > 5m, clamp at the ceiling.
	for i := 0; i < 4; i++ {
		cd.recordQuotaFailure(base, ceiling, now)
	}
	if got := cd.recordQuotaFailure(base, ceiling, now); got != ceiling {
		t.Fatalf("cooldown = %v, want ceiling %v", got, ceiling)
	}

	if cd.remaining(now) != ceiling {
		t.Fatalf("remaining = %v, want %v", cd.remaining(now), ceiling)
	}
	cd.clear()
	if cd.remaining(now) != 0 || cd.consecutive != 0 {
		t.Fatal("clear must reset the streak and window")
	}
}

func TestCooldownRemainingExpires(t *testing.T) {
	var cd cooldownState
	now := time.Now()
	cd.recordQuotaFailure(time.Second, time.Minute, now)
	if cd.remaining(now.Add(2*time.Second)) != 0 {
		t.Fatal("expired cooldown must report zero remaining")
	}
}
