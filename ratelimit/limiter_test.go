package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 50; i++ {
		if !l.Allow("hook_a", 0) {
			t.Fatal("limit 0 should never throttle")
		}
	}
}

func TestAllowExhaustsBucket(t *testing.T) {
	l := New()

	if !l.Allow("hook_b", 2) {
		t.Fatal("first call should pass")
	}
	if !l.Allow("hook_b", 2) {
		t.Fatal("second call should pass")
	}
	if l.Allow("hook_b", 2) {
		t.Fatal("third call should be throttled")
	}
}

func TestBucketRefills(t *testing.T) {
	l := New()

	for i := 0; i < 10; i++ {
		l.Allow("hook_c", 10)
	}
	if l.Allow("hook_c", 10) {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(200 * time.Millisecond)

	if !l.Allow("hook_c", 10) {
		t.Fatal("bucket should have refilled at least one token")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New()

	l.Allow("hook_d", 1)
	if l.Allow("hook_d", 1) {
		t.Fatal("hook_d should be throttled")
	}
	if !l.Allow("hook_e", 1) {
		t.Fatal("hook_e should have its own bucket")
	}
}

func TestWaitCancelled(t *testing.T) {
	l := New()
	l.Allow("hook_f", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "hook_f", 1); err == nil {
		t.Fatal("Wait should fail when the context expires first")
	}
}

func TestWaitEventuallyPasses(t *testing.T) {
	l := New()
	for i := 0; i < 20; i++ {
		l.Allow("hook_g", 20)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.Wait(ctx, "hook_g", 20); err != nil {
		t.Fatalf("Wait should succeed once a token arrives: %v", err)
	}
}

func TestForget(t *testing.T) {
	l := New()
	l.Allow("hook_h", 1)
	if l.Allow("hook_h", 1) {
		t.Fatal("should be throttled before Forget")
	}

	l.Forget("hook_h")

	if !l.Allow("hook_h", 1) {
		t.Fatal("Forget should reset the bucket")
	}
}
