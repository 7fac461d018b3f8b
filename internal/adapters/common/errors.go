package common

import (
	"errors"
	"fmt"
)

// Sentinels used to classify synchronous transmit failures.
var (
	ErrRejected           = errors.New("transmit rejected")
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// WrapRejected annotates an error so callers can detect a synchronous
// rejection.
func WrapRejected(err error) error {
	if err == nil {
		return ErrRejected
	}
	return fmt.Errorf("%w: %v", ErrRejected, err)
}

// Unavailable reports that a channel cannot accept commands right now.
func Unavailable(channel fmt.Stringer) error {
	return fmt.Errorf("%w: channel %s", ErrChannelUnavailable, channel)
}
