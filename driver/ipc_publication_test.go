package driver

import (
	"testing"
	"time"

	"github.com/TisonKun/aeron/logbuffer"
	"github.com/TisonKun/aeron/metrics"
)

func testContext() *Context {
	ctx := NewContext()
	ctx.TermLength = 64 * 1024
	ctx.IPCPublicationTermWindowLength = 4096
	ctx.Counters = metrics.NewSystemCounters(nil)
	return ctx
}

func newTestPublication(t *testing.T, ctx *Context, windowLength int64, exclusive bool) *IPCPublication {
	t.Helper()
	lb := logbuffer.WrapHeap(1, 10, 0, ctx.TermLength, 1408, 4096)
	return NewIPCPublication(1, 10, 1, lb, windowLength, exclusive, ctx)
}

// TestOfferBackPressuresAtWindowLimit covers spec.md scenario S2: a
// subscriber that never advances caps the publisher limit at the
// configured window and further offers are rejected until it does.
func TestOfferBackPressuresAtWindowLimit(t *testing.T) {
	ctx := testContext()
	pub := newTestPublication(t, ctx, 4096, false)

	sub := NewSubscribableEntry(1, true, 0, 1)
	pub.AddSubscriber(sub)
	pub.UpdatePublisherLimit()

	if limit := pub.PublisherLimit.Get(); limit != 4096 {
		t.Fatalf("publisher limit = %d, want 4096", limit)
	}

	payload := make([]byte, 512)
	var lastPosition int64
	offered := 0
	for {
		pos := pub.Offer(payload)
		if pos == PublicationBackPressured {
			break
		}
		if pos < 0 {
			t.Fatalf("unexpected offer result %d", pos)
		}
		lastPosition = pos
		offered++
		if offered > 100 {
			t.Fatal("offer never back-pressured")
		}
	}

	if lastPosition > pub.PublisherLimit.Get() {
		t.Fatalf("producer advanced past its limit: position=%d limit=%d", lastPosition, pub.PublisherLimit.Get())
	}

	sub.Position.Set(lastPosition)
	pub.UpdatePublisherLimit()
	if pos := pub.Offer(payload); pos == PublicationBackPressured {
		t.Fatal("offer still back-pressured after subscriber advanced")
	}
}

// TestDecRefDrainLingerEndOfLife covers spec.md scenario S6: the
// publication moves ACTIVE -> INACTIVE on the last decref, INACTIVE ->
// LINGER once every subscriber has drained past end_of_stream_position,
// and LINGER -> end of life once the linger timeout elapses.
func TestDecRefDrainLingerEndOfLife(t *testing.T) {
	ctx := testContext()
	ctx.PublicationLingerTimeout = 10 * time.Millisecond
	pub := newTestPublication(t, ctx, 4096, false)
	pub.IncRef()

	sub := NewSubscribableEntry(1, true, 0, 1)
	pub.AddSubscriber(sub)
	pub.UpdatePublisherLimit()

	pos := pub.Offer([]byte("hello"))
	if pos < 0 {
		t.Fatalf("Offer failed: %d", pos)
	}

	if err := pub.DecRef(); err != nil {
		t.Fatalf("DecRef: %v", err)
	}
	if pub.State != StateInactive {
		t.Fatalf("state = %v, want INACTIVE", pub.State)
	}

	var now int64
	pub.OnTimeEvent(now)
	if pub.State != StateInactive {
		t.Fatalf("state = %v, want still INACTIVE before subscriber drains", pub.State)
	}

	sub.Position.Set(pub.endOfStreamPosition)
	pub.OnTimeEvent(now)
	if pub.State != StateLinger {
		t.Fatalf("state = %v, want LINGER once drained", pub.State)
	}

	now += int64(5 * time.Millisecond)
	pub.OnTimeEvent(now)
	if pub.HasReachedEndOfLife() {
		t.Fatal("reached end of life before linger timeout elapsed")
	}

	now += int64(10 * time.Millisecond)
	pub.OnTimeEvent(now)
	if !pub.HasReachedEndOfLife() {
		t.Fatal("expected end of life once linger timeout elapsed")
	}
}

func TestDecRefPastZeroIsRejected(t *testing.T) {
	ctx := testContext()
	pub := newTestPublication(t, ctx, 4096, false)
	pub.IncRef()

	if err := pub.DecRef(); err != nil {
		t.Fatalf("first DecRef: %v", err)
	}
	if err := pub.DecRef(); err != ErrNegativeRefCount {
		t.Fatalf("second DecRef = %v, want ErrNegativeRefCount", err)
	}
}

// TestUntetheredSubscriberCyclesThroughLingerResting covers spec.md
// scenario S5: an untethered subscriber that falls behind the window
// is evicted to LINGER then RESTING, and is readmitted at the current
// consumer position once the resting timeout elapses.
func TestUntetheredSubscriberCyclesThroughLingerResting(t *testing.T) {
	ctx := testContext()
	ctx.UntetheredWindowLimitTimeout = 10 * time.Millisecond
	ctx.UntetheredRestingTimeout = 10 * time.Millisecond
	pub := newTestPublication(t, ctx, 4096, false)

	tethered := NewSubscribableEntry(1, true, 0, 1)
	lagging := NewSubscribableEntry(2, false, 0, 2)
	pub.AddSubscriber(tethered)
	pub.AddSubscriber(lagging)
	pub.UpdatePublisherLimit()

	payload := make([]byte, 512)
	var pos int64
	for i := 0; i < 4; i++ {
		pos = pub.Offer(payload)
		if pos < 0 {
			t.Fatalf("Offer failed at iteration %d: %d", i, pos)
		}
	}
	tethered.Position.Set(pos)
	pub.UpdatePublisherLimit()

	var now int64
	pub.checkUntethered(now)
	if lagging.State != TetherActive {
		t.Fatalf("lagging state = %v, want still ACTIVE before timeout", lagging.State)
	}

	now += int64(20 * time.Millisecond)
	pub.checkUntethered(now)
	if lagging.State != TetherLinger {
		t.Fatalf("lagging state = %v, want LINGER", lagging.State)
	}
	if lagging.pendingNotify != pendingUnavailable {
		t.Fatal("expected a pending unavailable-image notification on eviction")
	}
	lagging.pendingNotify = pendingNone

	now += int64(20 * time.Millisecond)
	pub.checkUntethered(now)
	if lagging.State != TetherResting {
		t.Fatalf("lagging state = %v, want RESTING", lagging.State)
	}

	now += int64(20 * time.Millisecond)
	pub.checkUntethered(now)
	if lagging.State != TetherActive {
		t.Fatalf("lagging state = %v, want ACTIVE again after resting timeout", lagging.State)
	}
	if lagging.pendingNotify != pendingAvailable {
		t.Fatal("expected a pending available-image notification on readmission")
	}
	if lagging.Position.Get() != pub.consumerPosition {
		t.Fatalf("readmitted position = %d, want consumerPosition %d", lagging.Position.Get(), pub.consumerPosition)
	}
}

func TestCheckBlockedProducerUnblocksAfterTimeout(t *testing.T) {
	ctx := testContext()
	ctx.PublicationUnblockTimeout = 10 * time.Millisecond
	pub := newTestPublication(t, ctx, 4096, false)

	sub := NewSubscribableEntry(1, true, 0, 1)
	pub.AddSubscriber(sub)
	pub.UpdatePublisherLimit()

	var claim logbuffer.BufferClaim
	pos := pub.Claim(128, &claim)
	if pos < 0 {
		t.Fatalf("Claim failed: %d", pos)
	}
	// Never commit: simulate a client that died mid-claim.

	pub.consumerPosition = 0
	pub.lastConsumerPosition = 0

	var now int64
	pub.checkBlockedProducer(now)
	if !pub.isBlockedSuspected {
		t.Fatal("expected blocked-producer suspicion on first check")
	}

	now += int64(20 * time.Millisecond)
	pub.checkBlockedProducer(now)
	if pub.ctx.Counters.UnblockedPublications.Count() == 0 {
		t.Fatal("expected UnblockedPublications counter to increment")
	}
}
