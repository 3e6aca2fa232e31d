package ratelimiter

import (
	"testing"
	"time"
)

func TestKeyLimiterBurstPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1700000000, 0)

	if !l.Allow("alice", now) || !l.Allow("alice", now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("alice", now) {
		t.Fatal("third request in the same instant should be limited")
	}
	if !l.Allow("bob", now) {
		t.Fatal("limits must be per key")
	}
	if !l.Allow("alice", now.Add(time.Second)) {
		t.Fatal("token should refill after one second")
	}
}

func TestKeyLimiterNilAndBlank(t *testing.T) {
	var l *KeyLimiter
	if !l.Allow("alice", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	if New(0, 1, 0) != nil {
		t.Fatal("non-positive rate should return nil")
	}
	live := New(1, 1, 0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !live.Allow("  ", now) {
			t.Fatal("blank key must not be limited")
		}
	}
}

func TestKeyLimiterSweepsIdleKeys(t *testing.T) {
	l := New(1000, 1000, time.Second)
	start := time.Unix(1700000000, 0)
	l.Allow("idle", start)

	later := start.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("busy", later)
	}
	if l.Len() != 1 {
		t.Fatalf("expected idle key to be swept, have %d keys", l.Len())
	}
}
