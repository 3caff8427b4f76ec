package cache

import (
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	cases := []struct {
		key  string
		ttl  time.Duration
		want string
	}{
		{"img1", time.Minute, "img1.60"},
		{"img1", 1500 * time.Millisecond, "img1.1"},
		{"img1", 0, "img1.0"},
		{"photo.png", time.Hour, "photo.png.3600"},
	}
	for _, tc := range cases {
		if got := FileName(tc.key, tc.ttl); got != tc.want {
			t.Fatalf("FileName(%q, %v) = %q, want %q", tc.key, tc.ttl, got, tc.want)
		}
	}
}

func TestParseFileName(t *testing.T) {
	const fallback = 7 * time.Hour
	cases := []struct {
		name    string
		wantKey string
		wantTTL time.Duration
	}{
		{"img1.60", "img1", time.Minute},
		{"photo.png.3600", "photo.png", time.Hour},
		{"b.png", "b", fallback},
		{"c", "c", fallback},
		{".hidden", ".hidden", fallback},
		{"neg.-5", "neg", -5 * time.Second},
		{"trailing.", "trailing", fallback},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, ttl := parseFileName(tc.name, fallback)
			if key != tc.wantKey || ttl != tc.wantTTL {
				t.Fatalf("parseFileName(%q) = (%q, %v), want (%q, %v)", tc.name, key, ttl, tc.wantKey, tc.wantTTL)
			}
		})
	}
}

func TestEntryExpired(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := Entry{Origin: origin, TTL: time.Minute}

	if entry.Expired(origin.Add(time.Minute)) {
		t.Fatalf("entry must not expire exactly at its deadline")
	}
	if !entry.Expired(origin.Add(time.Minute + time.Nanosecond)) {
		t.Fatalf("entry must expire after its deadline")
	}
	if !entry.ExpiresAt().Equal(origin.Add(time.Minute)) {
		t.Fatalf("unexpected ExpiresAt: %v", entry.ExpiresAt())
	}
}
