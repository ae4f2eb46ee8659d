package aeron

import (
	"testing"
	"time"

	"github.com/TisonKun/aeron/driver"
	"github.com/TisonKun/aeron/logbuffer"
)

func testConnect(t *testing.T) *Aeron {
	t.Helper()
	ctx := NewContext()
	ctx.Directory = t.TempDir()
	ctx.TermLength = 64 * 1024
	ctx.IPCPublicationTermWindowLength = 4096

	a, err := Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAddIPCPublicationAndSubscriptionEndToEnd(t *testing.T) {
	a := testConnect(t)

	pub, err := a.AddIPCPublication(10)
	if err != nil {
		t.Fatalf("AddIPCPublication: %v", err)
	}
	sub, err := a.AddIPCSubscription(10, true)
	if err != nil {
		t.Fatalf("AddIPCSubscription: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sub.ImageCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sub.ImageCount() != 1 {
		t.Fatalf("ImageCount = %d, want 1", sub.ImageCount())
	}

	// UpdatePublisherLimit only runs inside the conductor's own duty
	// cycle, so give it a little time to raise the limit off zero
	// before offering.
	deadline = time.Now().Add(2 * time.Second)
	for pub.pub.PublisherLimit.Get() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	payload := []byte("hello from the embedded driver")
	var offered int64
	deadline = time.Now().Add(2 * time.Second)
	for {
		offered = pub.Offer(payload)
		if offered >= 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Offer never succeeded, last result %d", offered)
		}
		time.Sleep(time.Millisecond)
	}

	var delivered []byte
	deadline = time.Now().Add(2 * time.Second)
	for len(delivered) == 0 && time.Now().Before(deadline) {
		sub.Poll(func(buf *logbuffer.Buffer, offset, length int32, header *logbuffer.Header) {
			delivered = buf.GetBytesCopy(offset, length)
		}, 10)
		if len(delivered) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if string(delivered) != string(payload) {
		t.Fatalf("delivered = %q, want %q", delivered, payload)
	}

	foundAvailable := false
	a.PollEvents(func(ev driver.Notification) {
		if ev.Kind == driver.NotifyAvailableImage {
			foundAvailable = true
		}
	})
	if !foundAvailable {
		t.Fatal("expected an available-image notification to have been queued")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Subscription.Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Publication.Close: %v", err)
	}
}

func TestCloseIsIdempotentAndRejectsFurtherCalls(t *testing.T) {
	ctx := NewContext()
	ctx.Directory = t.TempDir()
	ctx.TermLength = 64 * 1024

	a, err := Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := a.AddIPCPublication(1); err != ErrClientClosed {
		t.Fatalf("AddIPCPublication after Close = %v, want ErrClientClosed", err)
	}
}
