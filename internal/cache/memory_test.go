package cache

import (
	"context"
	"testing"
	"time"

	"tradeeval/internal/config"
)

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set err=%v", err)
	}
	if b, ok, _ := s.Get(ctx, "k"); !ok || string(b) != "v" {
		t.Fatalf("get=%q ok=%v", b, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type quote struct{ Value float64 }
	if err := SetJSON(ctx, s, "q", quote{Value: 42}, 0); err != nil {
		t.Fatalf("SetJSON err=%v", err)
	}
	var got quote
	ok, err := GetJSON(ctx, s, "q", &got)
	if err != nil || !ok || got.Value != 42 {
		t.Fatalf("GetJSON ok=%v err=%v got=%+v", ok, err, got)
	}
	_ = s.Set(ctx, "bad", []byte("{"), 0)
	if ok, _ := GetJSON(ctx, s, "bad", &got); ok {
		t.Fatalf("corrupt entry should miss")
	}
}

func TestNewDisabledByDefault(t *testing.T) {
	s, err := New(config.CacheConfig{})
	if err != nil || s != nil {
		t.Fatalf("store=%v err=%v want nil,nil", s, err)
	}
	if _, err := New(config.CacheConfig{Driver: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
