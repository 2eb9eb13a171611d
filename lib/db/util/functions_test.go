package util

import "testing"

func TestRingHash(t *testing.T) {
	// h = 1125899906842597 for the empty key, every byte folds in as 31*h + b
	if got := RingHash(""); got != ringHashSeed {
		t.Errorf("Expected seed for empty key, got %d", got)
	}
	if got, want := RingHash("a"), 31*ringHashSeed+'a'; got != want {
		t.Errorf("Expected %d, got %d", want, got)
	}

	if RingHash("some-key") != RingHash("some-key") {
		t.Errorf("RingHash is not deterministic")
	}
	if RingHash("key-1") == RingHash("key-2") {
		t.Errorf("Expected different hashes for different keys")
	}
}

func TestHashString(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		seed uint64
		same bool
	}{
		{"same input", "slave-1", "slave-1", 0, true},
		{"different input", "slave-1", "slave-2", 0, false},
		{"empty input", "", "", 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HashString(tt.a, tt.seed) == HashString(tt.b, tt.seed)
			if got != tt.same {
				t.Errorf("HashString(%q) == HashString(%q): got %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}

	if HashString("slave", 1) == HashString("slave", 2) {
		t.Errorf("Expected the seed to change the hash")
	}
}
