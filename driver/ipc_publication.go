package driver

import (
	"github.com/TisonKun/aeron/logbuffer"
	"github.com/TisonKun/aeron/util"
)

// PublicationState is the IPC publication lifecycle, spec.md §4.P
// "State machine".
type PublicationState int

const (
	StateActive PublicationState = iota
	StateInactive
	StateLinger
)

func (s PublicationState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateInactive:
		return "INACTIVE"
	case StateLinger:
		return "LINGER"
	default:
		return "UNKNOWN"
	}
}

// termCleaner drives the incremental zeroing spec.md §4.L "Cleaning"
// describes, tracking how far the buffer has been cleaned as a global
// stream position and resetting the per-term logbuffer.Cleaner each
// time it crosses into a new partition.
type termCleaner struct {
	cleaner  logbuffer.Cleaner
	position int64
}

func (tc *termCleaner) advance(lb *logbuffer.LogBuffers, shift uint8, target int64) {
	termLength := int64(lb.TermLength())
	for tc.position < target {
		localOffset := int64(logbuffer.ComputeTermOffsetFromPosition(tc.position, shift))
		if localOffset == 0 {
			tc.cleaner.Reset()
		}

		remainingInTerm := termLength - localOffset
		var localLimit int64
		if target-tc.position >= remainingInTerm {
			localLimit = termLength
		} else {
			localLimit = localOffset + (target - tc.position)
		}

		partitionIndex := logbuffer.IndexByPosition(tc.position, shift)
		termBuf := lb.TermBuffer(partitionIndex)

		before := tc.cleaner.Position()
		tc.cleaner.Clean(termBuf, localLimit)
		advanced := tc.cleaner.Position() - before
		if advanced <= 0 {
			return // nothing left to clean below localLimit
		}
		tc.position += advanced
		if tc.cleaner.Position() < localLimit {
			return // hit the per-call byte cap; resume next cycle
		}
	}
}

// IPCPublication is the log-buffer producer engine described in
// spec.md §4.P: one producer, N consumers, a flow-control window, and
// the lifecycle/untethered/unblock protocols layered on top of a plain
// logbuffer.Appender.
type IPCPublication struct {
	SessionID      int32
	StreamID       int32
	RegistrationID int64

	logBuffers *logbuffer.LogBuffers
	appender   *logbuffer.Appender
	shift      uint8
	initialTermID int32

	PublisherPosition *Position
	PublisherLimit    *Position

	subscribables []*SubscribableEntry

	refCount int32
	State    PublicationState

	windowLength int64
	tripLimit    int64
	cleaner      termCleaner

	consumerPosition     int64 // max subscriber position, cached for blocked-producer check
	lastConsumerPosition int64
	blockedSinceNs       int64
	isBlockedSuspected   bool

	endOfStreamPosition int64
	lingerDeadlineNs    int64
	hasReachedEndOfLife bool
	pendingDrainNotify  bool

	IsExclusive bool

	ctx *Context
}

// NewIPCPublication wires a log buffer into the publication engine.
// isExclusive selects the single-writer fetch-add claim path over the
// multi-writer CAS path (spec.md §4.L).
func NewIPCPublication(sessionID, streamID int32, registrationID int64, lb *logbuffer.LogBuffers, windowLength int64, isExclusive bool, ctx *Context) *IPCPublication {
	shift := logbuffer.PositionBitsToShift(lb.TermLength())
	return &IPCPublication{
		SessionID:           sessionID,
		StreamID:            streamID,
		RegistrationID:      registrationID,
		logBuffers:          lb,
		appender:            logbuffer.NewAppender(lb, isExclusive),
		shift:               shift,
		initialTermID:       lb.Meta().InitialTermID(),
		PublisherPosition:   NewPosition(0),
		PublisherLimit:      NewPosition(0),
		refCount:            0,
		State:               StateActive,
		windowLength:        windowLength,
		tripLimit:           0,
		endOfStreamPosition: logbuffer.EndOfStreamPositionInfinite,
		IsExclusive:         isExclusive,
		ctx:                 ctx,
	}
}

// Offer appends an unfragmented message if it fits under the current
// publisher limit, returning the new stream position on success or one
// of the PublicationXxx sentinels otherwise (spec.md §5 "Suspension
// points": claim operations never block, they return back-pressure).
func (p *IPCPublication) Offer(payload []byte) int64 {
	if p.State != StateActive {
		return PublicationClosed
	}

	limit := p.PublisherLimit.Get()
	position := p.PublisherPosition.Get()
	required := int64(util.AlignInt32(int32(logbuffer.HeaderLength+len(payload)), logbuffer.FrameAlignment))
	if position+required > limit {
		return PublicationBackPressured
	}

	newPosition := p.appender.AppendUnfragmentedMessage(payload, nil)
	if newPosition < 0 {
		return PublicationBackPressured
	}
	p.PublisherPosition.Set(newPosition)
	return newPosition
}

// Claim is the two-phase variant: callers write directly into the
// returned BufferClaim and must Commit or Abort it.
func (p *IPCPublication) Claim(length int32, claim *logbuffer.BufferClaim) int64 {
	if p.State != StateActive {
		return PublicationClosed
	}

	limit := p.PublisherLimit.Get()
	position := p.PublisherPosition.Get()
	required := int64(util.AlignInt32(logbuffer.HeaderLength+length, logbuffer.FrameAlignment))
	if position+required > limit {
		return PublicationBackPressured
	}

	newPosition := p.appender.Claim(length, claim)
	if newPosition < 0 {
		return PublicationBackPressured
	}
	p.PublisherPosition.Set(newPosition)
	return newPosition
}

// AddSubscriber attaches a new subscribable entry, per spec.md §3
// "Subscribable Entry".
func (p *IPCPublication) AddSubscriber(entry *SubscribableEntry) {
	p.subscribables = append(p.subscribables, entry)
}

// RemoveSubscriber detaches a subscriber by registration id.
func (p *IPCPublication) RemoveSubscriber(registrationID int64) {
	for i, e := range p.subscribables {
		if e.RegistrationID == registrationID {
			p.subscribables = append(p.subscribables[:i], p.subscribables[i+1:]...)
			return
		}
	}
}

// IncRef registers a new publisher-side client reference.
func (p *IPCPublication) IncRef() { p.refCount++ }

// DecRef releases a publisher-side client reference. When the count
// reaches zero the publication moves ACTIVE -> INACTIVE, stamping
// end_of_stream_position with the current producer position and
// capping publisher_limit there so no further data is accepted
// (spec.md §3 "Lifecycle", §8 property 5: idempotent past the first
// decref to zero).
func (p *IPCPublication) DecRef() error {
	if p.refCount <= 0 {
		return ErrNegativeRefCount
	}
	p.refCount--
	if p.refCount == 0 && p.State == StateActive {
		p.endOfStreamPosition = p.PublisherPosition.Get()
		p.PublisherLimit.Set(p.endOfStreamPosition)
		p.State = StateInactive
	}
	return nil
}

// UpdatePublisherLimit is called by the conductor every duty cycle
// (spec.md §4.P). It advances the flow-control window from the
// slowest non-resting subscriber and drives incremental cleaning.
func (p *IPCPublication) UpdatePublisherLimit() int64 {
	active := p.activeSubscribables()
	if len(active) == 0 {
		return 0
	}

	minSubPos := active[0].Position.Get()
	maxSubPos := minSubPos
	for _, e := range active[1:] {
		pos := e.Position.Get()
		if pos < minSubPos {
			minSubPos = pos
		}
		if pos > maxSubPos {
			maxSubPos = pos
		}
	}

	proposedLimit := minSubPos + p.windowLength
	if proposedLimit > p.tripLimit {
		p.cleaner.advance(p.logBuffers, p.shift, minSubPos)
		p.PublisherLimit.Set(proposedLimit)
		p.tripLimit = proposedLimit + p.windowLength/8
	}

	p.consumerPosition = maxSubPos
	return proposedLimit
}

func (p *IPCPublication) activeSubscribables() []*SubscribableEntry {
	var out []*SubscribableEntry
	for _, e := range p.subscribables {
		if e.State != TetherResting {
			out = append(out, e)
		}
	}
	return out
}

// OnTimeEvent performs one sweep of the state machine (spec.md §4.P
// "State machine" table).
func (p *IPCPublication) OnTimeEvent(nowNs int64) {
	switch p.State {
	case StateActive:
		p.checkUntethered(nowNs)
		if !p.IsExclusive {
			p.checkBlockedProducer(nowNs)
		}
	case StateInactive:
		if p.isDrained() {
			p.pendingDrainNotify = true
			p.State = StateLinger
			p.lingerDeadlineNs = nowNs + int64(p.ctx.PublicationLingerTimeout)
		} else if !p.IsExclusive {
			p.checkBlockedProducer(nowNs)
		}
	case StateLinger:
		if nowNs >= p.lingerDeadlineNs {
			p.hasReachedEndOfLife = true
		}
	}
}

func (p *IPCPublication) isDrained() bool {
	for _, e := range p.subscribables {
		if e.State == TetherResting {
			continue
		}
		if e.Position.Get() < p.endOfStreamPosition {
			return false
		}
	}
	return true
}

// checkUntethered implements spec.md §4.P "Untethered subscriber
// protocol". A tethered entry's timestamp is refreshed unconditionally
// (it never times out for lag); an untethered one that falls behind is
// cycled through Active -> Linger -> Resting, and once the resting
// timeout elapses it is readmitted as Active with its position snapped
// to the current consumer position.
func (p *IPCPublication) checkUntethered(nowNs int64) {
	limit := p.PublisherLimit.Get()
	windowLimit := limit - p.windowLength/8

	for _, e := range p.subscribables {
		if e.IsTether {
			e.TimeOfLastUpdateNs = nowNs
			continue
		}

		switch e.State {
		case TetherActive:
			if e.Position.Get() >= windowLimit {
				e.TimeOfLastUpdateNs = nowNs
				continue
			}
			if nowNs-e.TimeOfLastUpdateNs > int64(p.ctx.UntetheredWindowLimitTimeout) {
				e.State = TetherLinger
				e.TimeOfLastUpdateNs = nowNs
				e.pendingNotify = pendingUnavailable
			}
		case TetherLinger:
			if nowNs-e.TimeOfLastUpdateNs > int64(p.ctx.UntetheredWindowLimitTimeout) {
				e.State = TetherResting
				e.TimeOfLastUpdateNs = nowNs
			}
		case TetherResting:
			if nowNs-e.TimeOfLastUpdateNs > int64(p.ctx.UntetheredRestingTimeout) {
				e.Position.Set(p.consumerPosition)
				e.State = TetherActive
				e.TimeOfLastUpdateNs = nowNs
				e.pendingNotify = pendingAvailable
			}
		}
	}
}

// checkBlockedProducer implements spec.md §4.P "Blocked-producer
// detection": suspected if the consumer position hasn't advanced since
// the last check while the producer is ahead of it. Sustained
// suspicion past the unblock timeout triggers the log buffer
// unblocker.
func (p *IPCPublication) checkBlockedProducer(nowNs int64) {
	producerPosition := p.PublisherPosition.Get()
	if p.consumerPosition == p.lastConsumerPosition && producerPosition > p.consumerPosition {
		if !p.isBlockedSuspected {
			p.isBlockedSuspected = true
			p.blockedSinceNs = nowNs
			return
		}
		if nowNs-p.blockedSinceNs > int64(p.ctx.PublicationUnblockTimeout) {
			if logbuffer.Unblock(p.logBuffers, p.consumerPosition, producerPosition, p.initialTermID, p.shift) {
				if p.ctx.Counters != nil {
					p.ctx.Counters.UnblockedPublications.Inc(1)
				}
			}
			p.isBlockedSuspected = false
		}
	} else {
		p.isBlockedSuspected = false
	}
	p.lastConsumerPosition = p.consumerPosition
}

// HasReachedEndOfLife reports whether the conductor may now free this
// publication's resources.
func (p *IPCPublication) HasReachedEndOfLife() bool { return p.hasReachedEndOfLife }

// Close unmaps the backing log file. Called by the conductor once
// HasReachedEndOfLife is true and every counter has been freed.
func (p *IPCPublication) Close() error { return p.logBuffers.Close() }
