package series

import (
	"math"
	"testing"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -600} {
		if _, err := New(capacity); err == nil {
			t.Fatalf("expected error for capacity %d", capacity)
		}
	}
}

func TestPushEvictsOldest(t *testing.T) {
	s, err := New(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, v := range []float64{0.1, 0.5, 0.9, 0.2} {
		s.Push(v)
	}

	got := s.Snapshot()
	want := []float64{0.5, 0.9, 0.2}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestPushClampsOutOfRange(t *testing.T) {
	s, err := New(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Push(-0.5)
	s.Push(1.7)
	s.Push(math.Inf(1))
	s.Push(0.25)

	for i, v := range s.Snapshot() {
		if v < 0 || v > 1 {
			t.Fatalf("sample %d out of [0,1]: %v", i, v)
		}
	}

	got := s.Snapshot()
	if got[0] != 0 || got[1] != 1 || got[2] != 1 || got[3] != 0.25 {
		t.Fatalf("unexpected clamped samples: %v", got)
	}
}

func TestSnapshotNeverExceedsCapacity(t *testing.T) {
	s, err := New(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 100; i++ {
		s.Push(float64(i%10) / 10)
		if got := len(s.Snapshot()); got > s.Cap() {
			t.Fatalf("snapshot length %d exceeds capacity %d", got, s.Cap())
		}
	}
	if s.Len() != 8 {
		t.Fatalf("expected full buffer of 8, got %d", s.Len())
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Push(0.3)

	snap := s.Snapshot()
	snap[0] = 0.99
	s.Push(0.6)

	if got := s.Snapshot()[0]; got != 0.3 {
		t.Fatalf("mutating a snapshot leaked into storage: got %v", got)
	}
}

func TestRestoreKeepsMostRecent(t *testing.T) {
	s, err := New(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Restore([]float64{0.1, 0.2, 0.3, 0.4, 1.5})
	got := s.Snapshot()
	want := []float64{0.3, 0.4, 1.0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
