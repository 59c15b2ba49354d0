package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/msomdec/agun-web/internal/service"
)

func newBucket(t *testing.T, rate, capacity float64) *service.TokenBucket {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return service.NewTokenBucket(ctx, rate, capacity)
}

func TestTokenBucket_AllowsUpToCapacity(t *testing.T) {
	tb := newBucket(t, service.PerMinute(1), 3)

	for i := 0; i < 3; i++ {
		if ok, _ := tb.Allow("test-key"); !ok {
			t.Fatalf("request %d should be allowed (bucket not yet empty)", i+1)
		}
	}

	ok, wait := tb.Allow("test-key")
	if ok {
		t.Fatal("4th request should be denied (bucket empty)")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("expected a retry delay within a minute, got %v", wait)
	}
}

func TestTokenBucket_DifferentKeysAreIndependent(t *testing.T) {
	tb := newBucket(t, service.PerMinute(1), 1)

	if ok, _ := tb.Allow("ip-a"); !ok {
		t.Fatal("ip-a first request should be allowed")
	}
	if ok, _ := tb.Allow("ip-a"); ok {
		t.Fatal("ip-a second request should be denied")
	}
	if ok, _ := tb.Allow("ip-b"); !ok {
		t.Fatal("ip-b first request should be allowed (independent bucket)")
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	tb := newBucket(t, 0, 2)

	for i := 0; i < 2; i++ {
		if ok, _ := tb.Allow("k"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := tb.Allow("k"); ok {
		t.Fatal("third request should be denied (no refill)")
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	tb := newBucket(t, 1000, 1)

	if ok, _ := tb.Allow("k"); !ok {
		t.Fatal("first request should be allowed")
	}
	time.Sleep(5 * time.Millisecond)
	if ok, _ := tb.Allow("k"); !ok {
		t.Fatal("bucket should have refilled")
	}
}

func TestPerMinute(t *testing.T) {
	if got := service.PerMinute(60); got != 1 {
		t.Fatalf("expected 1 token/s, got %v", got)
	}
}
