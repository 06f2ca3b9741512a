package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("evt")

	first := gen.Next()
	second := gen.Next()

	if first != "evt-1" || second != "evt-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if issued := gen.Issued(); len(issued) != 2 || issued[1] != "evt-2" {
		t.Fatalf("unexpected issued list: %v", issued)
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("evt")
	_ = gen.Next()
	gen.Reset("rec")

	if next := gen.Next(); next != "rec-1" {
		t.Fatalf("expected rec-1 after reset, got %q", next)
	}
	if issued := gen.Issued(); len(issued) != 1 {
		t.Fatalf("expected reset to clear issued ids, got %v", issued)
	}
}
