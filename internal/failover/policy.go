package failover

import (
	"context"
	"time"

	common "github.com/example/sms-failover/internal/adapters/common"
	"github.com/example/sms-failover/internal/models"
)

// policy is one step of the dispatch chain. Steps are evaluated in order
// until one reports Accepted.
type policy struct {
	name     string
	dispatch func(ctx context.Context, req models.SendRequest) common.Outcome
}

// tryEnumeratedChannels sends on the primary channel and, when a second
// channel exists, proactively on the secondary as well.
func (c *Coordinator) tryEnumeratedChannels(ctx context.Context, req models.SendRequest) common.Outcome {
	ids := c.enumerator.ListChannels(ctx)
	if len(ids) == 0 {
		c.logger.Info().Str("send_id", req.SendID).Msg("failover: no channels enumerated")
		return common.NotApplicable
	}
	st := c.lookup(req.SendID)

	accepted := c.attempt(ctx, st, initialAttempt(req, ids[0])) == common.Accepted

	if len(ids) >= 2 {
		if !wait(ctx, c.cfg.InterAttemptDelay) {
			c.logger.Warn().
				Str("send_id", req.SendID).
				Err(ctx.Err()).
				Msg("failover: cancelled before secondary channel attempt")
		} else if c.attempt(ctx, st, initialAttempt(req, ids[1])) == common.Accepted {
			accepted = true
		}
	}

	if accepted {
		return common.Accepted
	}
	return common.Rejected
}

// tryDefaultChannel sends once through the implicit platform channel.
func (c *Coordinator) tryDefaultChannel(ctx context.Context, req models.SendRequest) common.Outcome {
	st := c.lookup(req.SendID)
	return c.attempt(ctx, st, initialAttempt(req, models.DefaultChannel))
}

func initialAttempt(req models.SendRequest, channel models.ChannelID) models.AttemptContext {
	return models.AttemptContext{
		SendID:      req.SendID,
		Destination: req.Destination,
		Body:        req.Body,
		Channel:     channel,
		Attempt:     models.AttemptInitial,
		Origin:      models.DefaultChannel,
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
