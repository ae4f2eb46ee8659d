package idlestrategy

import "testing"

func TestBackoffResetsOnWork(t *testing.T) {
	b := NewBackoff()
	for i := 0; i < maxSpins+maxYields+1; i++ {
		b.Idle(0)
	}
	if b.park <= minPark {
		t.Fatalf("expected park to have escalated past minPark, got %v", b.park)
	}

	b.Idle(1)
	if b.spins != 0 || b.yields != 0 || b.park != minPark {
		t.Fatalf("Idle(workCount>0) did not reset backoff state: %+v", b)
	}
}

func TestBackoffParkCapsAtMaxPark(t *testing.T) {
	b := NewBackoff()
	for i := 0; i < maxSpins+maxYields+50; i++ {
		b.Idle(0)
	}
	if b.park > maxPark {
		t.Fatalf("park exceeded maxPark: %v", b.park)
	}
}

func TestSleepingIdleIsNoopWhenWorkWasDone(t *testing.T) {
	s := Sleeping{Period: 0}
	s.Idle(1) // must not block
}
