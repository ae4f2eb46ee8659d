package aeron

import "errors"

// ErrClientClosed is returned by every operation on an Aeron client
// after Close has been called.
var ErrClientClosed = errors.New("aeron: client is closed")
