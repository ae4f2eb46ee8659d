package driver

// TetherState is a subscriber's attachment state, spec.md §3
// "Subscribable Entry" and §4.P "Untethered subscriber protocol".
type TetherState int

const (
	TetherActive TetherState = iota
	TetherLinger
	TetherResting
)

func (s TetherState) String() string {
	switch s {
	case TetherActive:
		return "ACTIVE"
	case TetherLinger:
		return "LINGER"
	case TetherResting:
		return "RESTING"
	default:
		return "UNKNOWN"
	}
}

// pendingNotify records an available-image/unavailable-image
// notification a subscribable's last OnTimeEvent transition owes its
// client; the conductor drains and clears it each sweep.
type pendingNotify int

const (
	pendingNone pendingNotify = iota
	pendingAvailable
	pendingUnavailable
)

// SubscribableEntry is one attached subscriber of an IPCPublication,
// spec.md §3. A tethered entry never leaves TetherActive and never
// times out for lag; an untethered one that falls behind is cycled
// through Active -> Linger -> Resting and, after the resting timeout,
// readmitted as Active at the current consumer position (spec.md §4.P).
type SubscribableEntry struct {
	RegistrationID int64
	CounterID      int32
	Position       *Position
	IsTether       bool
	State          TetherState
	TimeOfLastUpdateNs int64

	// ClientCorrelationID identifies the client this subscriber belongs
	// to, used to route available-image/unavailable-image notifications.
	ClientCorrelationID int64

	pendingNotify pendingNotify
}

func NewSubscribableEntry(registrationID int64, isTether bool, initialPosition int64, clientCorrelationID int64) *SubscribableEntry {
	return &SubscribableEntry{
		RegistrationID:      registrationID,
		Position:            NewPosition(initialPosition),
		IsTether:            isTether,
		State:               TetherActive,
		ClientCorrelationID: clientCorrelationID,
	}
}
