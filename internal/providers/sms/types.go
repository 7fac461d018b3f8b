package sms

import (
	"context"

	"github.com/example/sms-failover/internal/models"
)

// Submission is one transmit command: a message already divided into parts,
// addressed to one channel and tagged with an opaque correlation token.
type Submission struct {
	Token       string           `json:"token"`
	Channel     models.ChannelID `json:"channel"`
	Destination string           `json:"destination"`
	Parts       []string         `json:"parts"`
}

// Radio is the low-level transmit primitive. TransmitRaw returns promptly;
// a nil error means the command was accepted and one result per part will
// later be reported for the token. A non-nil error is an immediate local
// failure and no result follows.
type Radio interface {
	TransmitRaw(ctx context.Context, sub Submission) error
}

// ResultFunc receives raw per-part results reported by a radio.
type ResultFunc func(token string, code int)
