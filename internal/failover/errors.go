package failover

import "errors"

var (
	// ErrInvalidRequest rejects a send with a missing destination or body
	// before any channel is touched.
	ErrInvalidRequest = errors.New("invalid send request")
	// ErrNoAlternateChannel ends a send whose failed attempt has no other
	// channel to fail over to.
	ErrNoAlternateChannel = errors.New("no alternate channel available")
)
