package metrics

import "testing"

func TestNewSystemCountersRegistersEveryCounter(t *testing.T) {
	sc := NewSystemCounters(nil)

	sc.Errors.Inc(1)
	sc.UnblockedPublications.Inc(2)
	sc.FreeFails.Inc(3)

	if got := sc.Registry().Get(NameErrors); got == nil {
		t.Fatalf("errors counter not registered")
	}
	if sc.Errors.Count() != 1 {
		t.Fatalf("errors count = %d, want 1", sc.Errors.Count())
	}
	if sc.UnblockedPublications.Count() != 2 {
		t.Fatalf("unblocked publications count = %d, want 2", sc.UnblockedPublications.Count())
	}
	if sc.FreeFails.Count() != 3 {
		t.Fatalf("free fails count = %d, want 3", sc.FreeFails.Count())
	}
}

func TestNewSystemCountersSharesSuppliedRegistry(t *testing.T) {
	shared := NewSystemCounters(nil).Registry()
	a := NewSystemCounters(shared)
	b := NewSystemCounters(shared)

	a.Errors.Inc(5)
	if b.Errors.Count() != 5 {
		t.Fatalf("counters over a shared registry should alias the same metric, got %d", b.Errors.Count())
	}
}
