package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("device-a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("device-a") {
		t.Error("request past the limit should be denied")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("device-a") {
		t.Fatal("first request for device-a should be allowed")
	}
	if !rl.Allow("device-b") {
		t.Error("device-b must not share device-a's window")
	}
	if rl.Allow("device-a") {
		t.Error("device-a should be throttled")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 20*time.Millisecond)
	if !rl.Allow("device-a") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("device-a") {
		t.Fatal("second request inside the window should be denied")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("device-a") {
		t.Error("request after the window should be allowed")
	}
}
