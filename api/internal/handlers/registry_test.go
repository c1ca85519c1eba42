package handlers

import (
	"net/url"
	"strings"
	"testing"
)

func TestNewManualCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := newManualCode()
		if len(code) != 6 {
			t.Fatalf("manual code length = %d, want 6 (%q)", len(code), code)
		}
		for _, r := range code {
			if !strings.ContainsRune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", r) {
				t.Fatalf("manual code %q contains unexpected character %q", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("manual codes do not vary: %v", seen)
	}
}

func TestQRURLEscapesToken(t *testing.T) {
	raw := "abc def&x=1"
	got := qrURL(raw)
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("qr url does not parse: %v", err)
	}
	if parsed.Query().Get("data") != raw {
		t.Fatalf("data param = %q, want %q", parsed.Query().Get("data"), raw)
	}
}
