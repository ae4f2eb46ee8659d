package aeron

import (
	"github.com/TisonKun/aeron/driver"
	"github.com/TisonKun/aeron/logbuffer"
)

// Subscription is a client handle onto a driver.SubscriptionRegistration.
// Poll fans out across every currently attached image; images come and
// go as matching publications attach or age out, which is why the image
// set is read through SubscriptionRegistration.Images rather than a
// field this type caches itself.
type Subscription struct {
	sub    *driver.SubscriptionRegistration
	client *Aeron
}

// StreamID returns the stream this subscription was registered on.
func (s *Subscription) StreamID() int32 { return s.sub.StreamID }

// ImageCount returns the number of images currently attached.
func (s *Subscription) ImageCount() int { return len(s.sub.Images()) }

// Poll delivers up to fragmentLimit fragments per image across every
// attached image, returning the total fragments delivered.
func (s *Subscription) Poll(handler logbuffer.FragmentHandler, fragmentLimit int) int {
	total := 0
	for _, img := range s.sub.Images() {
		total += img.Poll(handler, fragmentLimit)
	}
	return total
}

// Close detaches this subscription from every image and removes it from
// the conductor's registry.
func (s *Subscription) Close() error {
	res := s.client.call(func(c *driver.Conductor) callResult {
		err := c.DispatchRemoveSubscription(driver.RemoveSubscriptionCommand{RegistrationID: s.sub.RegistrationID})
		return callResult{err: err}
	})
	return res.err
}
