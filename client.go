package aeron

import (
	"sync/atomic"

	"github.com/TisonKun/aeron/driver"
)

// Aeron is an embedded-driver client: it owns a driver.Conductor running
// its duty cycle on a dedicated goroutine and exposes a synchronous
// request/response surface over it, the way sarama's SyncProducer wraps
// an AsyncProducer's channels into blocking calls callers don't have to
// think about as concurrent machinery.
type Aeron struct {
	conductor           *driver.Conductor
	clientCorrelationID int64

	stop   chan struct{}
	done   chan struct{}
	closed int32
}

// Connect starts an embedded driver conductor under ctx and begins its
// duty cycle. There is no out-of-process media driver in this module's
// scope (spec.md §1 lists external client wrappers as a contract-only
// boundary); Connect is this module's analogue of dialing one.
func Connect(ctx *Context) (*Aeron, error) {
	conductor, err := driver.NewConductor(ctx)
	if err != nil {
		return nil, err
	}

	a := &Aeron{
		conductor:           conductor,
		clientCorrelationID: ctx.NanoClock(),
		stop:                make(chan struct{}),
		done:                make(chan struct{}),
	}

	go func() {
		defer close(a.done)
		conductor.Run(a.stop)
	}()

	return a, nil
}

// Close stops the duty-cycle goroutine and releases the conductor. It is
// safe to call more than once.
func (a *Aeron) Close() error {
	if !atomic.CompareAndSwapInt32(&a.closed, 0, 1) {
		return nil
	}
	close(a.stop)
	<-a.done
	a.conductor.Close()
	return nil
}

type callResult struct {
	publication  *driver.IPCPublication
	subscription *driver.SubscriptionRegistration
	err          error
}

// call schedules fn to run on the conductor goroutine and blocks for its
// result, the way package driver's own EnqueueDriverCommand mechanism is
// meant to be driven from outside the conductor's single thread.
func (a *Aeron) call(fn func(*driver.Conductor) callResult) callResult {
	if atomic.LoadInt32(&a.closed) == 1 {
		return callResult{err: ErrClientClosed}
	}

	resCh := make(chan callResult, 1)
	a.conductor.EnqueueDriverCommand(func(c *driver.Conductor) {
		resCh <- fn(c)
	})
	return <-resCh
}

// AddIPCPublication requests a (possibly shared) IPC publication on
// streamID.
func (a *Aeron) AddIPCPublication(streamID int32) (*Publication, error) {
	return a.addIPCPublication(streamID, false)
}

// AddExclusiveIPCPublication requests a publication that never shares
// its log buffer with another client's publication on the same stream.
func (a *Aeron) AddExclusiveIPCPublication(streamID int32) (*Publication, error) {
	return a.addIPCPublication(streamID, true)
}

func (a *Aeron) addIPCPublication(streamID int32, exclusive bool) (*Publication, error) {
	res := a.call(func(c *driver.Conductor) callResult {
		pub, err := c.DispatchAddIPCPublication(driver.AddIPCPublicationCommand{
			ClientCorrelationID: a.clientCorrelationID,
			StreamID:            streamID,
			IsExclusive:         exclusive,
		})
		return callResult{publication: pub, err: err}
	})
	if res.err != nil {
		return nil, res.err
	}
	return &Publication{pub: res.publication, client: a}, nil
}

// AddIPCSubscription attaches to every current and future ACTIVE IPC
// publication on streamID. isTether marks this subscriber as one the
// publication's flow-control window must wait for (spec.md §4.P
// "Untethered subscriber protocol").
func (a *Aeron) AddIPCSubscription(streamID int32, isTether bool) (*Subscription, error) {
	res := a.call(func(c *driver.Conductor) callResult {
		sub, err := c.DispatchAddIPCSubscription(driver.AddIPCSubscriptionCommand{
			ClientCorrelationID: a.clientCorrelationID,
			StreamID:            streamID,
			IsTether:            isTether,
		})
		return callResult{subscription: sub, err: err}
	})
	if res.err != nil {
		return nil, res.err
	}
	return &Subscription{sub: res.subscription, client: a}, nil
}

// PollEvents drains pending available-image/unavailable-image
// notifications (spec.md §3 "Lifecycle"), invoking handler for each.
func (a *Aeron) PollEvents(handler func(driver.Notification)) int {
	if atomic.LoadInt32(&a.closed) == 1 {
		return 0
	}

	resCh := make(chan []driver.Notification, 1)
	a.conductor.EnqueueDriverCommand(func(c *driver.Conductor) {
		evs := c.Events
		c.Events = nil
		resCh <- evs
	})

	events := <-resCh
	for _, ev := range events {
		handler(ev)
	}
	return len(events)
}
