package models

import "strconv"

// ChannelID identifies a transmission channel (one SIM subscription). The
// value is opaque; DefaultChannel means "no specific channel".
type ChannelID int

// DefaultChannel addresses the implicit platform channel used when no
// subscription can be enumerated.
const DefaultChannel ChannelID = -1

// IsDefault reports whether the id addresses the implicit channel.
func (c ChannelID) IsDefault() bool { return c == DefaultChannel }

// Ptr returns the id as an optional int, nil for the default channel.
func (c ChannelID) Ptr() *int {
	if c.IsDefault() {
		return nil
	}
	v := int(c)
	return &v
}

func (c ChannelID) String() string {
	if c.IsDefault() {
		return "default"
	}
	return strconv.Itoa(int(c))
}

// Attempt numbers. No attempt beyond AttemptRetry is ever created.
const (
	AttemptInitial = 0
	AttemptRetry   = 1
)

// SendRequest is created once per SendMessage call and lives for the
// original attempt plus at most one retry.
type SendRequest struct {
	SendID      string `json:"send_id"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// AttemptContext travels with a transmission across the asynchronous
// boundary so its outcome can be matched back to the originating send.
type AttemptContext struct {
	SendID      string
	Destination string
	Body        string
	Channel     ChannelID
	Attempt     int
	// Origin is the channel whose failure triggered this attempt, or
	// DefaultChannel for initial attempts.
	Origin ChannelID
}

// IsRetry reports whether the context describes the single permitted retry.
func (a AttemptContext) IsRetry() bool { return a.Attempt >= AttemptRetry }
