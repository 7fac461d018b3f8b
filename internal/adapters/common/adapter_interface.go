package common

import (
	"context"

	"github.com/example/sms-failover/internal/models"
)

// Outcome is the synchronous result of handing one attempt to a channel.
type Outcome int

const (
	// NotApplicable means the step had nothing to try (for example no
	// enumerable channels).
	NotApplicable Outcome = iota
	// Accepted means the command was handed to the channel. It does not
	// mean the message was delivered.
	Accepted
	// Rejected is an immediate local failure; no outcome event follows.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "not_applicable"
	}
}

// Transmitter hands one attempt to one channel. Implementations must arrange
// for exactly one outcome event per Accepted call.
type Transmitter interface {
	Send(ctx context.Context, attempt models.AttemptContext) Outcome
}
