package sighting

import "testing"

func TestGateSeededIdentitiesAreKnown(t *testing.T) {
	t.Parallel()

	gate := NewGate([]string{"aaaabbbbcccc", "ddddeeeeffff"})
	if gate.IsNew("aaaabbbbcccc") {
		t.Fatalf("seeded identity reported as new")
	}
	if !gate.IsNew("111122223333") {
		t.Fatalf("unseen identity reported as known")
	}
	if gate.Size() != 3 {
		t.Fatalf("gate size %d, want 3", gate.Size())
	}
}

func TestGateAdmitsOncePerExecution(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil)
	if !gate.IsNew("aaaabbbbcccc") {
		t.Fatalf("first sighting of identity must be new")
	}
	if gate.IsNew("aaaabbbbcccc") {
		t.Fatalf("second sighting of identity in the same execution must be duplicate")
	}
}

func TestGateRejectsEmptyFingerprint(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil)
	if gate.IsNew("") {
		t.Fatalf("empty fingerprint must never be admitted")
	}
}
