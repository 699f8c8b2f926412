package dispatch

import (
	"strings"
	"testing"
)

func TestNewThreadIDShape(t *testing.T) {
	id := NewThreadID()

	if len(id) != 8 {
		t.Fatalf("expected 8 characters, got %d (%q)", len(id), id)
	}

	for _, r := range id {
		if !strings.ContainsRune(tokenAlphabet, r) {
			t.Errorf("unexpected character %q in thread id", r)
		}
	}
}

func TestNewThreadIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewThreadID()
		if seen[id] {
			t.Fatalf("duplicate thread id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}
