package aeron

import "github.com/TisonKun/aeron/driver"

// Publication is a client handle onto a driver.IPCPublication: it
// forwards the hot-path offer/claim calls directly (no conductor round
// trip, since those never mutate conductor state) and routes the
// lifecycle-affecting Close through the conductor's command queue.
type Publication struct {
	pub    *driver.IPCPublication
	client *Aeron
}

// StreamID returns the stream this publication was registered on.
func (p *Publication) StreamID() int32 { return p.pub.StreamID }

// SessionID returns the allocated (or shared) session id.
func (p *Publication) SessionID() int32 { return p.pub.SessionID }

// Offer appends an unfragmented message, returning the new stream
// position, or driver.PublicationBackPressured or
// driver.PublicationClosed if it could not be appended.
func (p *Publication) Offer(payload []byte) int64 {
	return p.pub.Offer(payload)
}

// Position returns the publisher's current stream position.
func (p *Publication) Position() int64 {
	return p.pub.PublisherPosition.Get()
}

// Close decrefs this client's hold on the publication, letting the
// conductor drive it through INACTIVE -> LINGER -> end of life once
// every subscriber has drained it (spec.md §3 "Lifecycle").
func (p *Publication) Close() error {
	res := p.client.call(func(c *driver.Conductor) callResult {
		err := c.DispatchRemovePublication(driver.RemovePublicationCommand{RegistrationID: p.pub.RegistrationID})
		return callResult{err: err}
	})
	return res.err
}
