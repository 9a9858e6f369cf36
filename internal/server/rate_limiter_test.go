package server

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("request %d must be allowed", i)
		}
	}
	if rl.Allow("user-1") {
		t.Fatal("fourth request in the window must be denied")
	}
}

func TestAllowIsPerKey(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	if !rl.Allow("a") {
		t.Fatal("first request for a must pass")
	}
	if !rl.Allow("b") {
		t.Fatal("a's usage must not count against b")
	}
	if rl.Allow("a") {
		t.Fatal("a is over its limit")
	}
}

func TestWindowResets(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("user-1") {
		t.Fatal("first request must pass")
	}
	if rl.Allow("user-1") {
		t.Fatal("second request in the same window must be denied")
	}

	now = now.Add(2 * time.Minute)
	if !rl.Allow("user-1") {
		t.Fatal("a fresh window must admit the request")
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	rl := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("request %d denied with no limit configured", i)
		}
	}
}

func TestEmptyKeyDenied(t *testing.T) {
	rl := newRateLimiter(10, time.Minute)
	if rl.Allow("") {
		t.Fatal("empty keys must be denied")
	}
}

func TestPruneDropsStaleWindows(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	rl.Allow("fresh")

	now = now.Add(time.Hour)
	rl.Allow("fresh")
	rl.prune(now)

	rl.mu.Lock()
	_, staleKept := rl.items["stale"]
	_, freshKept := rl.items["fresh"]
	rl.mu.Unlock()

	if staleKept {
		t.Fatal("stale window must be pruned")
	}
	if !freshKept {
		t.Fatal("active window must survive the prune")
	}
}
