package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/TisonKun/aeron/idlestrategy"
	"github.com/TisonKun/aeron/logbuffer"
	"github.com/TisonKun/aeron/logging"
	"github.com/TisonKun/aeron/metrics"
	"github.com/TisonKun/aeron/ringbuffer"
)

// ipcCanonicalChannel is the session-allocator channel key for every
// IPC publication; IPC has no network channel URI to canonicalise, so
// the whole IPC address space shares one key (spec.md §4.C "Session id
// allocation": "(session_id, stream_id, canonical_channel)").
const ipcCanonicalChannel = "aeron:ipc"

// NotificationKind is an available-image/unavailable-image event the
// conductor owes a client (spec.md §4.P "Untethered subscriber
// protocol", §3 "Lifecycle").
type NotificationKind int

const (
	NotifyAvailableImage NotificationKind = iota
	NotifyUnavailableImage
)

type Notification struct {
	Kind                NotificationKind
	ClientCorrelationID int64
	RegistrationID      int64
	StreamID            int32
	SessionID           int32
}

// SubscriptionRegistration is a client's attachment to a stream. Its
// image set is owned by the conductor goroutine (images map, keyed by
// publication registration id) but published for lock-free cross-thread
// reads through imageSnapshot, the way Aeron's own ClientConductor
// republishes an immutable Image[] array rather than handing callers a
// live map they'd have to synchronise against.
type SubscriptionRegistration struct {
	RegistrationID      int64
	ClientCorrelationID int64
	StreamID            int32
	IsTether            bool
	Reliable            bool
	Rejoin              bool

	images        map[int64]*Image // keyed by publication registration id; conductor-goroutine only
	imageSnapshot atomic.Pointer[[]*Image]
}

// Images returns a snapshot of the currently attached images, safe to
// call from any goroutine.
func (s *SubscriptionRegistration) Images() []*Image {
	p := s.imageSnapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (s *SubscriptionRegistration) rebuildSnapshot() {
	out := make([]*Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	s.imageSnapshot.Store(&out)
}

// Conductor is the single-threaded control-plane loop of spec.md §4.C:
// it owns every publication, subscription and image, dispatches
// commands, and sweeps resources for time-based transitions. Apart from
// EnqueueDriverCommand, nothing here is safe to call from more than one
// goroutine; concurrency with client threads happens through command
// rings, atomic position counters and the mutex-guarded internal
// command queue, never through this type's other state.
type Conductor struct {
	ctx *Context

	clients     *ClientRegistry
	sessionIDs  *SessionIDAllocator
	commandRing *ringbuffer.ManyToOne

	// driverCmdQueue carries deferred callbacks the way sarama's
	// asyncProducer drains an internal FIFO of in-flight work each
	// loop iteration (other_examples sarama-family fork
	// async_producer.go queue.New()) — here it's the conductor's own
	// cross-agent callback channel from a (not-in-scope) sender or
	// receiver agent, kept so that boundary is wired rather than
	// assumed away. queue.Queue has no internal locking, and client
	// goroutines now enqueue onto it directly (package aeron's
	// Aeron.call), so driverCmdQueueMu guards every access instead of
	// relying on the conductor being the queue's only caller.
	driverCmdQueue   *queue.Queue
	driverCmdQueueMu sync.Mutex

	publications map[int64]*IPCPublication
	images       map[int64]*Image
	subscriptions map[int64]*SubscriptionRegistration

	streamPublications  map[int32][]*IPCPublication
	streamSubscriptions map[int32][]*SubscriptionRegistration

	nextRegistrationID int64

	cachedNanoTime int64
	lastUpdateNs   int64
	lastTimerNs    int64

	// Blocked-commands-ring tracking, mirroring IPCPublication's
	// blocked-producer detection (spec.md §4.C "Blocked-commands
	// check"): suspected once the ring's consumer position stops
	// advancing while a producer has claimed space ahead of it, and
	// unblocked once that holds past the client-liveness timeout.
	lastCommandRingConsumerPos int64
	commandRingBlockSuspectedAt int64
	commandRingBlockSuspected   bool

	Events []Notification

	closed bool
}

// NewConductor wires a Conductor from ctx, applying defaults for any
// unset collaborators (metrics registry, command ring) the way
// sarama.NewClient lazily constructs its own metricRegistry when the
// caller's Config doesn't supply one.
func NewConductor(ctx *Context) (*Conductor, error) {
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	if ctx.Counters == nil {
		ctx.Counters = metrics.NewSystemCounters(ctx.Registry)
	}
	if ctx.Logger == nil {
		ctx.Logger = logging.Nop
	}
	if ctx.IdleStrategy == nil {
		ctx.IdleStrategy = idlestrategy.NewBackoff()
	}

	return &Conductor{
		ctx:                 ctx,
		clients:             NewClientRegistry(),
		sessionIDs:          NewSessionIDAllocator(ctx.PublicationReservedSessionIDLow, ctx.PublicationReservedSessionIDHigh),
		driverCmdQueue:      queue.New(),
		publications:        make(map[int64]*IPCPublication),
		images:               make(map[int64]*Image),
		subscriptions:        make(map[int64]*SubscriptionRegistration),
		streamPublications:   make(map[int32][]*IPCPublication),
		streamSubscriptions:  make(map[int32][]*SubscriptionRegistration),
		nextRegistrationID:  1,
	}, nil
}

// AttachCommandRing wires an externally-owned ring buffer as the
// client->driver command transport (spec.md §6 "Command protocol").
// Tests that want to dispatch commands directly can skip this and call
// the dispatchXxx methods instead.
func (c *Conductor) AttachCommandRing(ring *ringbuffer.ManyToOne) {
	c.commandRing = ring
}

func (c *Conductor) allocRegistrationID() int64 {
	id := c.nextRegistrationID
	c.nextRegistrationID++
	return id
}

// DoWork runs one duty-cycle iteration (spec.md §4.C "Duty cycle") and
// returns the amount of work done, for an idlestrategy.Strategy to act
// on.
func (c *Conductor) DoWork() int {
	if c.closed {
		return 0
	}

	nowNs := c.ctx.NanoClock()
	if nowNs-c.lastUpdateNs >= int64(time.Millisecond) {
		c.cachedNanoTime = nowNs
		c.lastUpdateNs = nowNs
	}
	nowNs = c.cachedNanoTime
	work := 0

	if nowNs-c.lastTimerNs >= int64(c.ctx.TimerInterval) {
		c.lastTimerNs = nowNs
		work += c.sweepResources(nowNs)
		c.checkClientTimeouts(nowNs)
		c.checkBlockedCommandsRing(nowNs)
	}

	work += c.drainCommandRing()
	work += c.drainInternalCommandQueue()

	for _, pub := range c.publications {
		if pub.State == StateActive {
			pub.UpdatePublisherLimit()
		}
	}

	return work
}

// Run drives DoWork in a loop until stop is closed, idling per
// ctx.IdleStrategy between empty cycles (spec.md §5 "Suspension
// points": the conductor busy-polls with a caller-supplied idle
// strategy).
func (c *Conductor) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		work := c.DoWork()
		c.ctx.IdleStrategy.Idle(work)
	}
}

// EnqueueDriverCommand schedules fn to run on the conductor thread
// during the next duty cycle's internal-queue drain (spec.md §4.C duty
// cycle step 4: "Drain internal driver command queue (callbacks from
// sender/receiver)"). Safe to call from any goroutine.
func (c *Conductor) EnqueueDriverCommand(fn func(*Conductor)) {
	c.driverCmdQueueMu.Lock()
	c.driverCmdQueue.Add(fn)
	c.driverCmdQueueMu.Unlock()
}

func (c *Conductor) drainInternalCommandQueue() int {
	n := 0
	for {
		c.driverCmdQueueMu.Lock()
		if c.driverCmdQueue.Length() == 0 {
			c.driverCmdQueueMu.Unlock()
			break
		}
		cmd := c.driverCmdQueue.Remove()
		c.driverCmdQueueMu.Unlock()
		if fn, ok := cmd.(func(*Conductor)); ok {
			fn(c)
			n++
		}
	}
	return n
}

func (c *Conductor) drainCommandRing() int {
	if c.commandRing == nil {
		return 0
	}
	const limit = 10
	return c.commandRing.Read(func(msgTypeID int32, payload []byte) {
		c.dispatch(msgTypeID, payload)
	}, limit)
}

func (c *Conductor) dispatch(msgTypeID int32, payload []byte) {
	switch msgTypeID {
	case MsgAddIPCPublication:
		cmd, err := decodeAddIPCPublication(payload)
		if err != nil {
			c.recordError(err)
			return
		}
		if _, err := c.DispatchAddIPCPublication(cmd); err != nil {
			c.recordError(err)
		}
	case MsgRemovePublication:
		cmd, err := decodeRemovePublication(payload)
		if err != nil {
			c.recordError(err)
			return
		}
		if err := c.DispatchRemovePublication(cmd); err != nil {
			c.recordError(err)
		}
	case MsgAddIPCSubscription:
		cmd, err := decodeAddIPCSubscription(payload)
		if err != nil {
			c.recordError(err)
			return
		}
		if _, err := c.DispatchAddIPCSubscription(cmd); err != nil {
			c.recordError(err)
		}
	case MsgRemoveSubscription:
		cmd, err := decodeRemoveSubscription(payload)
		if err != nil {
			c.recordError(err)
			return
		}
		if err := c.DispatchRemoveSubscription(cmd); err != nil {
			c.recordError(err)
		}
	case MsgClientKeepalive:
		cmd, err := decodeClientKeepalive(payload)
		if err != nil {
			c.recordError(err)
			return
		}
		c.DispatchClientKeepalive(cmd)
	default:
		c.recordError(fmt.Errorf("aeron: unknown command type %d", msgTypeID))
	}
}

func (c *Conductor) recordError(err error) {
	c.ctx.Logger.Printf("aeron: command error: %v", err)
	if c.ctx.Counters != nil {
		c.ctx.Counters.Errors.Inc(1)
	}
}

// DispatchAddIPCPublication implements spec.md §4.C "on_add_publication"
// for the IPC transport: allocate or validate a session id, join an
// existing shared publication on the same stream when one is ACTIVE
// and the request isn't exclusive, else create a new log buffer and
// publication, then attach every matching pending subscription.
func (c *Conductor) DispatchAddIPCPublication(cmd AddIPCPublicationCommand) (*IPCPublication, error) {
	client, ok := c.clients.Get(cmd.ClientCorrelationID)
	if !ok {
		client = c.clients.Register(cmd.ClientCorrelationID, c.ctx.NanoClock())
	}

	if !cmd.IsExclusive {
		if pub := c.findSharedPublication(cmd.StreamID); pub != nil {
			pub.IncRef()
			client.PublicationLinks = append(client.PublicationLinks, pub.RegistrationID)
			return pub, nil
		}
	}

	sessionID := cmd.SessionID
	if sessionID == 0 {
		sessionID = c.sessionIDs.Allocate(cmd.StreamID, ipcCanonicalChannel)
	} else if err := c.sessionIDs.AllocateExplicit(sessionID, cmd.StreamID, ipcCanonicalChannel); err != nil {
		return nil, &ConductorError{Op: "add-publication", CorrelationID: cmd.CorrelationID, Err: err}
	}

	registrationID := c.allocRegistrationID()
	pubDir := filepath.Join(c.ctx.Directory, "publications")
	if err := os.MkdirAll(pubDir, 0o755); err != nil {
		c.sessionIDs.Release(sessionID, cmd.StreamID, ipcCanonicalChannel)
		return nil, &ConductorError{Op: "add-publication", CorrelationID: cmd.CorrelationID, Err: err}
	}
	path := filepath.Join(pubDir, fmt.Sprintf("%d.logbuffer", registrationID))

	lb, err := logbuffer.CreateLogBuffers(path, sessionID, cmd.StreamID, 0, c.ctx.TermLength, c.ctx.MTULength, c.ctx.FilePageSize, 0)
	if err != nil {
		c.sessionIDs.Release(sessionID, cmd.StreamID, ipcCanonicalChannel)
		return nil, &ConductorError{Op: "add-publication", CorrelationID: cmd.CorrelationID, Err: err}
	}

	pub := NewIPCPublication(sessionID, cmd.StreamID, registrationID, lb, int64(c.ctx.IPCPublicationTermWindowLength), cmd.IsExclusive, c.ctx)
	pub.IncRef()

	c.publications[registrationID] = pub
	c.streamPublications[cmd.StreamID] = append(c.streamPublications[cmd.StreamID], pub)
	client.PublicationLinks = append(client.PublicationLinks, registrationID)

	for _, sub := range c.streamSubscriptions[cmd.StreamID] {
		c.attachSubscriptionToPublication(sub, pub)
	}

	return pub, nil
}

func (c *Conductor) findSharedPublication(streamID int32) *IPCPublication {
	for _, pub := range c.streamPublications[streamID] {
		if !pub.IsExclusive && pub.State == StateActive {
			return pub
		}
	}
	return nil
}

// DispatchRemovePublication implements "on_remove_publication":
// decref, letting the normal sweep drive ACTIVE -> INACTIVE -> LINGER
// -> free once drained.
func (c *Conductor) DispatchRemovePublication(cmd RemovePublicationCommand) error {
	pub, ok := c.publications[cmd.RegistrationID]
	if !ok {
		return &ConductorError{Op: "remove-publication", CorrelationID: cmd.CorrelationID, Err: ErrUnknownPublication}
	}
	return pub.DecRef()
}

// DispatchAddIPCSubscription implements "on_add_subscription": rejects
// a clashing reliable/rejoin request on the same stream (spec.md §4.C
// "Clashing subscriptions"), else registers and attaches to every
// currently ACTIVE matching publication.
func (c *Conductor) DispatchAddIPCSubscription(cmd AddIPCSubscriptionCommand) (*SubscriptionRegistration, error) {
	client, ok := c.clients.Get(cmd.ClientCorrelationID)
	if !ok {
		client = c.clients.Register(cmd.ClientCorrelationID, c.ctx.NanoClock())
	}

	for _, existing := range c.streamSubscriptions[cmd.StreamID] {
		if existing.Reliable != cmd.Reliable || existing.Rejoin != cmd.Rejoin {
			return nil, &ConductorError{Op: "add-subscription", CorrelationID: cmd.CorrelationID, Err: ErrClashingSubscription}
		}
	}

	registrationID := c.allocRegistrationID()
	sub := &SubscriptionRegistration{
		RegistrationID:      registrationID,
		ClientCorrelationID: cmd.ClientCorrelationID,
		StreamID:            cmd.StreamID,
		IsTether:            cmd.IsTether,
		Reliable:            cmd.Reliable,
		Rejoin:              cmd.Rejoin,
		images:              make(map[int64]*Image),
	}
	sub.rebuildSnapshot()
	c.subscriptions[registrationID] = sub
	c.streamSubscriptions[cmd.StreamID] = append(c.streamSubscriptions[cmd.StreamID], sub)
	client.SubscriptionLinks = append(client.SubscriptionLinks, registrationID)

	for _, pub := range c.streamPublications[cmd.StreamID] {
		if pub.State == StateActive {
			c.attachSubscriptionToPublication(sub, pub)
		}
	}

	return sub, nil
}

func (c *Conductor) attachSubscriptionToPublication(sub *SubscriptionRegistration, pub *IPCPublication) {
	if _, already := sub.images[pub.RegistrationID]; already {
		return
	}

	entryID := c.allocRegistrationID()
	position := pub.PublisherPosition.Get()

	entry := NewSubscribableEntry(entryID, sub.IsTether, position, sub.ClientCorrelationID)
	pub.AddSubscriber(entry)

	img := NewImage(pub.SessionID, pub.StreamID, entryID, pub.logBuffers, position)
	img.SubscriberPosition = entry.Position
	img.PublicationRegistrationID = pub.RegistrationID

	sub.images[pub.RegistrationID] = img
	sub.rebuildSnapshot()
	c.images[entryID] = img

	c.Events = append(c.Events, Notification{
		Kind:                NotifyAvailableImage,
		ClientCorrelationID: sub.ClientCorrelationID,
		RegistrationID:      sub.RegistrationID,
		StreamID:            pub.StreamID,
		SessionID:           pub.SessionID,
	})
}

// DispatchRemoveSubscription implements "on_remove_subscription".
func (c *Conductor) DispatchRemoveSubscription(cmd RemoveSubscriptionCommand) error {
	sub, ok := c.subscriptions[cmd.RegistrationID]
	if !ok {
		return &ConductorError{Op: "remove-subscription", CorrelationID: cmd.CorrelationID, Err: ErrUnknownSubscription}
	}

	for pubRegID, img := range sub.images {
		if pub, ok := c.publications[pubRegID]; ok {
			pub.RemoveSubscriber(img.CorrelationID)
		}
		delete(c.images, img.CorrelationID)
	}
	sub.images = make(map[int64]*Image)
	sub.rebuildSnapshot()

	delete(c.subscriptions, cmd.RegistrationID)
	c.streamSubscriptions[sub.StreamID] = removeSubscription(c.streamSubscriptions[sub.StreamID], sub)
	return nil
}

func removeSubscription(list []*SubscriptionRegistration, target *SubscriptionRegistration) []*SubscriptionRegistration {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// DispatchClientKeepalive implements "on_client_keepalive".
func (c *Conductor) DispatchClientKeepalive(cmd ClientKeepaliveCommand) {
	if !c.clients.Keepalive(cmd.ClientCorrelationID, c.ctx.NanoClock()) {
		client := c.clients.Register(cmd.ClientCorrelationID, c.ctx.NanoClock())
		c.ctx.Logger.Debugf("aeron: client %d registered (token %s)", cmd.ClientCorrelationID, client.Token)
	}
	if c.ctx.Counters != nil {
		c.ctx.Counters.ClientKeepalives.Inc(1)
	}
}

// sweepResources implements checkManagedResources (spec.md §4.C):
// every publication gets a time-event sweep; those that reach end of
// life are freed (unmapped and unlinked), with failures retried next
// cycle and counted.
func (c *Conductor) sweepResources(nowNs int64) int {
	work := 0
	for regID, pub := range c.publications {
		work++
		pub.OnTimeEvent(nowNs)
		c.drainPublicationNotifications(pub)

		if pub.HasReachedEndOfLife() {
			if err := pub.Close(); err != nil {
				if c.ctx.Counters != nil {
					c.ctx.Counters.FreeFails.Inc(1)
				}
				continue
			}
			c.sessionIDs.Release(pub.SessionID, pub.StreamID, ipcCanonicalChannel)
			delete(c.publications, regID)
			c.streamPublications[pub.StreamID] = removePublication(c.streamPublications[pub.StreamID], pub)
		}
	}
	return work
}

func removePublication(list []*IPCPublication, target *IPCPublication) []*IPCPublication {
	for i, p := range list {
		if p == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// drainPublicationNotifications turns an IPCPublication's untethered
// state transitions (spec.md §4.P) into driver-level events a client
// would receive as available-image/unavailable-image notifications.
func (c *Conductor) drainPublicationNotifications(pub *IPCPublication) {
	for _, e := range pub.subscribables {
		if e.pendingNotify == pendingNone {
			continue
		}
		kind := NotifyUnavailableImage
		if e.pendingNotify == pendingAvailable {
			kind = NotifyAvailableImage
		}
		c.Events = append(c.Events, Notification{
			Kind:                kind,
			ClientCorrelationID: e.ClientCorrelationID,
			RegistrationID:      e.RegistrationID,
			StreamID:            pub.StreamID,
			SessionID:           pub.SessionID,
		})
		e.pendingNotify = pendingNone
	}

	if pub.pendingDrainNotify {
		for _, e := range pub.subscribables {
			if e.State == TetherResting {
				continue
			}
			c.Events = append(c.Events, Notification{
				Kind:                NotifyUnavailableImage,
				ClientCorrelationID: e.ClientCorrelationID,
				RegistrationID:      e.RegistrationID,
				StreamID:            pub.StreamID,
				SessionID:           pub.SessionID,
			})
		}
		pub.pendingDrainNotify = false
	}
}

// checkClientTimeouts implements spec.md's "Client heartbeat timeout"
// failure semantics: decref every publication and remove every
// subscription belonging to a client whose keepalive has lapsed.
func (c *Conductor) checkClientTimeouts(nowNs int64) {
	timedOut := c.clients.CheckTimeouts(nowNs, int64(c.ctx.ClientLivenessTimeout))
	for _, clientID := range timedOut {
		if c.ctx.Counters != nil {
			c.ctx.Counters.ClientTimeouts.Inc(1)
		}
		client, _ := c.clients.Get(clientID)
		c.ctx.Logger.Printf("aeron: client %d (token %s) timed out, releasing its resources", clientID, client.Token)
		for _, regID := range client.PublicationLinks {
			if pub, ok := c.publications[regID]; ok {
				_ = pub.DecRef()
			}
		}
		for _, regID := range client.SubscriptionLinks {
			_ = c.DispatchRemoveSubscription(RemoveSubscriptionCommand{RegistrationID: regID})
		}
		c.clients.Remove(clientID)
	}
}

// checkBlockedCommandsRing implements spec.md §4.C "Blocked-commands
// check": if the command ring's consumer position hasn't advanced
// since the last timer sweep while a producer has claimed space ahead
// of it, and that holds past the client-liveness timeout, attempt to
// unblock the ring by writing a padding record over the stuck claim —
// the same detect-then-unblock shape IPCPublication.checkBlockedProducer
// already uses for a stalled log-buffer producer.
func (c *Conductor) checkBlockedCommandsRing(nowNs int64) {
	if c.commandRing == nil {
		return
	}

	consumerPos := c.commandRing.ConsumerPosition()
	producerPos := c.commandRing.ProducerPosition()

	if consumerPos == c.lastCommandRingConsumerPos && producerPos > consumerPos {
		if !c.commandRingBlockSuspected {
			c.commandRingBlockSuspected = true
			c.commandRingBlockSuspectedAt = nowNs
			return
		}
		if nowNs-c.commandRingBlockSuspectedAt > int64(c.ctx.ClientLivenessTimeout) {
			if c.commandRing.Unblock() {
				if c.ctx.Counters != nil {
					c.ctx.Counters.UnblockedCommands.Inc(1)
				}
			}
			c.commandRingBlockSuspected = false
		}
	} else {
		c.commandRingBlockSuspected = false
	}
	c.lastCommandRingConsumerPos = consumerPos
}

// Close stops accepting new work; DoWork becomes a no-op.
func (c *Conductor) Close() { c.closed = true }
