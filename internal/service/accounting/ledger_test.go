package accounting

import (
	"math"
	"testing"
)

func TestLedger_IncreaseMonotonic(t *testing.T) {
	l := New(0)
	steps := []uint64{0, 10, 4096, 1, 0, 1 << 20}

	var prev uint64
	for i, n := range steps {
		l.Increase(n)
		got := l.Downloaded()
		if got < prev {
			t.Fatalf("step %d: Downloaded() = %d, decreased from %d", i, got, prev)
		}
		prev = got
	}
	if want := uint64(10 + 4096 + 1 + 1<<20); prev != want {
		t.Errorf("Downloaded() = %d, want %d", prev, want)
	}
	if l.Overflowed() {
		t.Error("Overflowed() = true, want false")
	}
}

func TestLedger_OverflowLatches(t *testing.T) {
	l := New(100)
	l.Increase(math.MaxUint64 - 5)
	l.Increase(10)

	if !l.Overflowed() {
		t.Fatal("Overflowed() = false, want true after wraparound")
	}
	if got := l.Downloaded(); got != math.MaxUint64 {
		t.Errorf("Downloaded() = %d, want max", got)
	}

	l.Increase(1)
	l.Increase(math.MaxUint64)
	if got := l.Downloaded(); got != math.MaxUint64 {
		t.Errorf("Downloaded() after latch = %d, want max", got)
	}
}

func TestLedger_ExceedsQuota(t *testing.T) {
	tests := []struct {
		name       string
		quota      uint64
		increments []uint64
		want       bool
	}{
		{"no quota", 0, []uint64{1 << 40}, false},
		{"below quota", 100, []uint64{50}, false},
		{"at quota", 100, []uint64{60, 40}, false},
		{"above quota", 100, []uint64{60, 41}, true},
		{"overflow assumes not exceeded", 100, []uint64{math.MaxUint64, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.quota)
			for _, n := range tt.increments {
				l.Increase(n)
			}
			if got := l.ExceedsQuota(); got != tt.want {
				t.Errorf("ExceedsQuota() = %v, want %v (downloaded=%d)", got, tt.want, l.Downloaded())
			}
		})
	}
}

func TestLedger_RecordRetrieval(t *testing.T) {
	l := New(0)
	for i := 0; i < 3; i++ {
		l.RecordRetrieval()
	}
	if got := l.Retrievals(); got != 3 {
		t.Errorf("Retrievals() = %d, want 3", got)
	}
}
