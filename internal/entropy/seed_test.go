package entropy

import "testing"

func TestNilClientFallsBack(t *testing.T) {
	c := NewClient("")
	if c != nil {
		t.Fatal("NewClient with empty key should return nil")
	}
	if c.Enabled() {
		t.Error("nil client reports enabled")
	}
	if seed := c.Seed(); seed < 0 {
		t.Errorf("Seed() = %d, want non-negative", seed)
	}
}

func TestCryptoSeedVaries(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 8; i++ {
		s := CryptoSeed()
		if s < 0 {
			t.Fatalf("CryptoSeed() = %d, want non-negative", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Error("CryptoSeed returned the same value 8 times")
	}
}
