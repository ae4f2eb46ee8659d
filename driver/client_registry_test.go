package driver

import "testing"

func TestRegisterAndKeepalive(t *testing.T) {
	r := NewClientRegistry()
	client := r.Register(1, 0)
	if client.CorrelationID != 1 {
		t.Fatalf("CorrelationID = %d, want 1", client.CorrelationID)
	}

	if !r.Keepalive(1, 100) {
		t.Fatal("Keepalive returned false for a registered client")
	}
	got, ok := r.Get(1)
	if !ok || got.LastKeepaliveNs != 100 {
		t.Fatalf("Get after keepalive = %+v, ok=%v", got, ok)
	}

	if r.Keepalive(2, 100) {
		t.Fatal("Keepalive returned true for an unknown client")
	}
}

func TestCheckTimeoutsFlagsStaleClientsOnce(t *testing.T) {
	r := NewClientRegistry()
	r.Register(1, 0)

	timedOut := r.CheckTimeouts(5, 10)
	if len(timedOut) != 0 {
		t.Fatalf("expected no timeouts yet, got %v", timedOut)
	}

	timedOut = r.CheckTimeouts(20, 10)
	if len(timedOut) != 1 || timedOut[0] != 1 {
		t.Fatalf("expected client 1 timed out, got %v", timedOut)
	}

	timedOut = r.CheckTimeouts(30, 10)
	if len(timedOut) != 0 {
		t.Fatalf("client already flagged should not be reported twice, got %v", timedOut)
	}
}
