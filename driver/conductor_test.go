package driver

import (
	"testing"
	"time"

	"github.com/TisonKun/aeron/logbuffer"
	"github.com/TisonKun/aeron/ringbuffer"
)

func newTestConductor(t *testing.T) *Conductor {
	t.Helper()
	ctx := NewContext()
	ctx.Directory = t.TempDir()
	ctx.TermLength = 64 * 1024
	ctx.IPCPublicationTermWindowLength = 4096
	var fakeNow int64
	ctx.NanoClock = func() int64 { return fakeNow }
	ctx.EpochClock = func() int64 { return fakeNow / 1000 }

	c, err := NewConductor(ctx)
	if err != nil {
		t.Fatalf("NewConductor: %v", err)
	}
	return c
}

func TestDispatchAddIPCPublicationCreatesLogFile(t *testing.T) {
	c := newTestConductor(t)

	pub, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{
		ClientCorrelationID: 1,
		CorrelationID:       2,
		StreamID:            10,
	})
	if err != nil {
		t.Fatalf("DispatchAddIPCPublication: %v", err)
	}
	if pub.SessionID == 0 {
		t.Fatal("expected a non-zero allocated session id")
	}
	if pub.State != StateActive {
		t.Fatalf("state = %v, want ACTIVE", pub.State)
	}
}

func TestDispatchAddIPCPublicationJoinsSharedPublication(t *testing.T) {
	c := newTestConductor(t)

	first, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 1, StreamID: 10})
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 2, StreamID: 10})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if first.RegistrationID != second.RegistrationID {
		t.Fatalf("expected both clients to share one IPC publication, got %d and %d", first.RegistrationID, second.RegistrationID)
	}
}

func TestDispatchAddIPCPublicationExclusiveDoesNotShare(t *testing.T) {
	c := newTestConductor(t)

	first, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 1, StreamID: 10, IsExclusive: true})
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 2, StreamID: 10, IsExclusive: true})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if first.RegistrationID == second.RegistrationID {
		t.Fatal("exclusive publications must not be shared")
	}
	if first.SessionID == second.SessionID {
		t.Fatal("exclusive publications must not share a session id")
	}
}

func TestDispatchAddIPCSubscriptionMatchesExistingPublication(t *testing.T) {
	c := newTestConductor(t)

	pub, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 1, StreamID: 10})
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}

	sub, err := c.DispatchAddIPCSubscription(AddIPCSubscriptionCommand{ClientCorrelationID: 2, StreamID: 10, IsTether: true})
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	images := sub.Images()
	if len(images) != 1 {
		t.Fatalf("expected one image attached to the existing publication, got %d", len(images))
	}
	img := images[0]
	if len(pub.subscribables) != 1 {
		t.Fatalf("expected the publication to carry one subscribable entry, got %d", len(pub.subscribables))
	}
	if img.SessionID != pub.SessionID {
		t.Fatalf("image session id = %d, want %d", img.SessionID, pub.SessionID)
	}

	foundAvailable := false
	for _, ev := range c.Events {
		if ev.Kind == NotifyAvailableImage && ev.RegistrationID == sub.RegistrationID {
			foundAvailable = true
		}
	}
	if !foundAvailable {
		t.Fatal("expected an available-image notification")
	}
}

func TestDispatchAddIPCSubscriptionRejectsClashingReliability(t *testing.T) {
	c := newTestConductor(t)

	if _, err := c.DispatchAddIPCSubscription(AddIPCSubscriptionCommand{ClientCorrelationID: 1, StreamID: 10, Reliable: true}); err != nil {
		t.Fatalf("first subscription: %v", err)
	}
	_, err := c.DispatchAddIPCSubscription(AddIPCSubscriptionCommand{ClientCorrelationID: 2, StreamID: 10, Reliable: false})
	cerr, ok := err.(*ConductorError)
	if !ok || cerr.Err != ErrClashingSubscription {
		t.Fatalf("expected ErrClashingSubscription, got %v", err)
	}
}

func TestPublicationAndSubscriptionEndToEndThroughOfferAndPoll(t *testing.T) {
	c := newTestConductor(t)

	pub, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 1, StreamID: 10})
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	sub, err := c.DispatchAddIPCSubscription(AddIPCSubscriptionCommand{ClientCorrelationID: 2, StreamID: 10, IsTether: true})
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	pub.UpdatePublisherLimit()

	payload := []byte("hello, conductor")
	if pos := pub.Offer(payload); pos < 0 {
		t.Fatalf("Offer failed: %d", pos)
	}

	images := sub.Images()
	if len(images) != 1 {
		t.Fatalf("expected one image, got %d", len(images))
	}
	img := images[0]
	var delivered []byte
	n := img.Poll(func(buf *logbuffer.Buffer, offset, length int32, header *logbuffer.Header) {
		delivered = buf.GetBytesCopy(offset, length)
	}, 10)

	if n != 1 {
		t.Fatalf("fragments delivered = %d, want 1", n)
	}
	if string(delivered) != string(payload) {
		t.Fatalf("delivered payload = %q, want %q", delivered, payload)
	}
	if img.SubscriberPosition.Get() == 0 {
		t.Fatal("expected subscriber position to advance past the delivered fragment")
	}
}

func TestDispatchRemovePublicationDecrefsTowardEndOfLife(t *testing.T) {
	c := newTestConductor(t)

	pub, err := c.DispatchAddIPCPublication(AddIPCPublicationCommand{ClientCorrelationID: 1, StreamID: 10})
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}

	if err := c.DispatchRemovePublication(RemovePublicationCommand{RegistrationID: pub.RegistrationID}); err != nil {
		t.Fatalf("remove publication: %v", err)
	}
	if pub.State != StateInactive {
		t.Fatalf("state = %v, want INACTIVE after the only client decrefs", pub.State)
	}
}

func TestDispatchClientKeepaliveRegistersUnknownClient(t *testing.T) {
	c := newTestConductor(t)

	c.DispatchClientKeepalive(ClientKeepaliveCommand{ClientCorrelationID: 42})
	if _, ok := c.clients.Get(42); !ok {
		t.Fatal("expected an implicit client registration on first keepalive")
	}
}

// TestCheckBlockedCommandsRingLeavesDrainedRingAlone covers the common
// path of spec.md's "Blocked-commands check": a ring that is being
// drained normally every duty cycle must never be mistaken for stuck,
// no matter how long the conductor runs.
func TestCheckBlockedCommandsRingLeavesDrainedRingAlone(t *testing.T) {
	c := newTestConductor(t)
	ring := ringbuffer.NewManyToOne(logbuffer.Wrap(make([]byte, 1024)))
	c.AttachCommandRing(ring)

	fakeNow := int64(0)
	c.ctx.NanoClock = func() int64 { return fakeNow }
	c.ctx.EpochClock = func() int64 { return fakeNow / 1000 }

	for i := 0; i < 5; i++ {
		if err := ring.Write(MsgClientKeepalive, encodeClientKeepalive(ClientKeepaliveCommand{ClientCorrelationID: 1})); err != nil {
			t.Fatalf("ring write: %v", err)
		}
		fakeNow += int64(c.ctx.TimerInterval) + int64(c.ctx.ClientLivenessTimeout) + int64(time.Millisecond)
		c.DoWork()
	}

	if got := c.ctx.Counters.UnblockedCommands.Count(); got != 0 {
		t.Fatalf("UnblockedCommands = %d, want 0 for a ring that is drained every cycle", got)
	}
}

func TestDoWorkDrainsInternalCommandQueue(t *testing.T) {
	c := newTestConductor(t)

	ran := false
	c.EnqueueDriverCommand(func(*Conductor) { ran = true })
	c.DoWork()

	if !ran {
		t.Fatal("expected the queued driver command to run during DoWork")
	}
}
