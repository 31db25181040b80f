package ids

import (
	"strings"
	"testing"
)

func TestNewIsUniqueAndSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("urn:bank:")
	if !strings.HasPrefix(id, "urn:bank:") {
		t.Fatalf("missing prefix: %s", id)
	}
	if len(id) != len("urn:bank:")+36 {
		t.Fatalf("unexpected length: %d", len(id))
	}
	if Prefixed("x") == Prefixed("x") {
		t.Fatal("expected distinct ids")
	}
}
