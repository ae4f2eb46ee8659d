package driver

import (
	"github.com/google/uuid"
)

// ClientLiveness tracks a single connected client's heartbeat, per
// spec.md §4.C duty cycle step 2 and §4 Failure semantics "Client
// heartbeat timeout". Token is a human-debuggable identifier carried
// in log lines alongside the spec-mandated monotone
// correlation id (SPEC_FULL.md DOMAIN STACK), grounded on the
// GoCodeAlone-modular eventbus's use of uuid.New() for subscriber ids.
type ClientLiveness struct {
	CorrelationID      int64
	Token              uuid.UUID
	LastKeepaliveNs    int64
	PublicationLinks    []int64 // registration ids of publications this client references
	SubscriptionLinks   []int64 // registration ids of subscriptions this client owns
	HasReachedEndOfLife bool
}

// ClientRegistry tracks every connected client the conductor knows
// about, keyed by correlation id (spec.md §4.C, §3 "IPC Publication
// Record" refcnt is driven by this registry's publication links).
type ClientRegistry struct {
	clients map[int64]*ClientLiveness
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[int64]*ClientLiveness)}
}

// Register admits a new client, minting it a debug token.
func (r *ClientRegistry) Register(correlationID int64, nowNs int64) *ClientLiveness {
	c := &ClientLiveness{
		CorrelationID:   correlationID,
		Token:           uuid.New(),
		LastKeepaliveNs: nowNs,
	}
	r.clients[correlationID] = c
	return c
}

func (r *ClientRegistry) Get(correlationID int64) (*ClientLiveness, bool) {
	c, ok := r.clients[correlationID]
	return c, ok
}

// Keepalive refreshes a client's liveness timestamp; spec.md §4.N
// counts each as a system counter increment so operators can see
// keepalive traffic volume.
func (r *ClientRegistry) Keepalive(correlationID, nowNs int64) bool {
	c, ok := r.clients[correlationID]
	if !ok {
		return false
	}
	c.LastKeepaliveNs = nowNs
	return true
}

// CheckTimeouts flags every client whose last keepalive predates
// nowNs-livenessTimeoutNs as having reached end of life, returning
// their correlation ids for the conductor to then decref/remove their
// resources (spec.md §4 Failure semantics: "all its publications
// decref'd, all its subscriptions removed").
func (r *ClientRegistry) CheckTimeouts(nowNs, livenessTimeoutNs int64) []int64 {
	var timedOut []int64
	for id, c := range r.clients {
		if c.HasReachedEndOfLife {
			continue
		}
		if nowNs-c.LastKeepaliveNs > livenessTimeoutNs {
			c.HasReachedEndOfLife = true
			timedOut = append(timedOut, id)
		}
	}
	return timedOut
}

func (r *ClientRegistry) Remove(correlationID int64) {
	delete(r.clients, correlationID)
}
