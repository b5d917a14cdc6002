package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("req")

	first := gen.Next()
	second := gen.Next()

	if first != "req-1" || second != "req-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Last() != "req-2" {
		t.Fatalf("expected Last to report req-2, got %q", gen.Last())
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("resource")
	_ = gen.Next()
	gen.Reset("res")

	if gen.Last() != "" {
		t.Fatalf("expected no issued identifiers after reset, got %q", gen.Last())
	}
	if next := gen.Next(); next != "res-1" {
		t.Fatalf("expected res-1 after reset, got %q", next)
	}
}
