package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/toolcat/visimatch/domain/pipeline"
)

func TestAllowGeneral_BurstThenRejected(t *testing.T) {
	l := New(WithGeneralRate(time.Hour, 5))
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if err := l.AllowGeneral("u1"); err != nil {
			t.Fatalf("request %d: want allowed, got %v", i, err)
		}
	}

	err := l.AllowGeneral("u1")
	if err == nil {
		t.Fatal("want rate limited after burst exhausted")
	}
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		t.Fatalf("want *pipeline.Error, got %T", err)
	}
	if pe.Kind != pipeline.KindRateLimited {
		t.Errorf("Kind = %v, want %v", pe.Kind, pipeline.KindRateLimited)
	}
	if pe.RetryAfter <= 0 {
		t.Error("RetryAfter should be positive")
	}
}

func TestAllowGeneral_PerUserIsolation(t *testing.T) {
	l := New(WithGeneralRate(time.Hour, 1))
	defer l.Stop()

	if err := l.AllowGeneral("u1"); err != nil {
		t.Fatalf("u1 first request: %v", err)
	}
	if err := l.AllowGeneral("u1"); err == nil {
		t.Fatal("u1 second request should be rate limited")
	}
	if err := l.AllowGeneral("u2"); err != nil {
		t.Fatalf("u2 should have its own bucket, got %v", err)
	}
}

func TestAllowPhoto_AdminBypasses(t *testing.T) {
	l := New(WithPhotoRate(time.Hour, 1))
	defer l.Stop()

	if err := l.AllowPhoto("admin1", true); err != nil {
		t.Fatalf("first admin photo: %v", err)
	}
	if err := l.AllowPhoto("admin1", true); err != nil {
		t.Fatalf("admin should bypass photo bucket entirely, got %v", err)
	}
}

func TestAllowPhoto_NonAdminRateLimited(t *testing.T) {
	l := New(WithPhotoRate(time.Hour, 1))
	defer l.Stop()

	if err := l.AllowPhoto("u1", false); err != nil {
		t.Fatalf("first photo: %v", err)
	}
	if err := l.AllowPhoto("u1", false); err == nil {
		t.Fatal("second photo within window should be rate limited")
	}
}

func TestAllowPhoto_IndependentFromGeneral(t *testing.T) {
	l := New(WithGeneralRate(time.Hour, 1), WithPhotoRate(time.Hour, 1))
	defer l.Stop()

	if err := l.AllowGeneral("u1"); err != nil {
		t.Fatalf("general: %v", err)
	}
	if err := l.AllowPhoto("u1", false); err != nil {
		t.Fatalf("photo bucket should be independent of general bucket, got %v", err)
	}
}

func TestCleanup_EvictsIdleUsers(t *testing.T) {
	l := New(WithGeneralRate(time.Hour, 1))
	defer l.Stop()

	l.entryFor("stale-user", 1, 1)
	if _, ok := l.users["stale-user"]; !ok {
		t.Fatal("expected entry to be created")
	}

	l.cleanup(0) // idleAfter=0: any existing entry's lastAccess precedes "now - 0"

	l.mu.Lock()
	_, stillPresent := l.users["stale-user"]
	l.mu.Unlock()

	if stillPresent {
		t.Error("cleanup should have evicted an idle user")
	}
}

func TestStop_SafeToCallMultipleTimes(t *testing.T) {
	l := New()
	l.Stop()
	l.Stop()
}
