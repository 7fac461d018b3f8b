// Package channels enumerates the transmission channels (SIM subscriptions)
// available at call time. Enumeration never fails from the caller's point of
// view: a broken source yields an empty list.
package channels

import (
	"context"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

// Enumerator lists the channels available right now, primary first. The
// result is finite and may be empty.
type Enumerator interface {
	ListChannels(ctx context.Context) []models.ChannelID
}

// Info is the metadata reported for one subscription.
type Info struct {
	ID          models.ChannelID
	SlotIndex   int
	CarrierName string
	DisplayName string
}

// Label renders the channel for log output.
func (i Info) Label() string {
	return fmt.Sprintf("SIM %d, ID: %d", i.SlotIndex, int(i.ID))
}

// Source is a fallible platform query for active subscriptions, in slot
// order.
type Source func(ctx context.Context) ([]Info, error)

// Safe adapts a Source into an Enumerator. Errors and panics are logged and
// reported as an empty channel list.
func Safe(src Source, logger zerolog.Logger) *Directory {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Directory{source: src, logger: logger}
}

// Static returns a Directory over a fixed subscription list.
func Static(infos ...Info) *Directory {
	snapshot := append([]Info(nil), infos...)
	return Safe(func(context.Context) ([]Info, error) {
		return snapshot, nil
	}, zerolog.Nop())
}

// IDs builds a static Directory from bare ids; slot index follows position.
func IDs(ids ...models.ChannelID) *Directory {
	infos := make([]Info, 0, len(ids))
	for i, id := range ids {
		infos = append(infos, Info{ID: id, SlotIndex: i, DisplayName: fmt.Sprintf("SIM %d", i+1)})
	}
	return Static(infos...)
}

// Directory queries its Source afresh on every call; availability may
// change between sends so nothing is cached.
type Directory struct {
	source Source
	logger zerolog.Logger
}

// ListChannels implements Enumerator.
func (d *Directory) ListChannels(ctx context.Context) []models.ChannelID {
	infos := d.Subscriptions(ctx)
	ids := make([]models.ChannelID, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	return ids
}

// Subscriptions returns the full metadata for the active subscriptions.
func (d *Directory) Subscriptions(ctx context.Context) (infos []Info) {
	if d == nil || d.source == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Msg("channels: subscription query panicked; treating as no channels")
			infos = nil
		}
	}()

	out, err := d.source(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("channels: subscription query failed; treating as no channels")
		return nil
	}
	for _, info := range out {
		d.logger.Debug().
			Int("channel", int(info.ID)).
			Int("slot", info.SlotIndex).
			Str("carrier", info.CarrierName).
			Msg("channels: found active subscription")
	}
	return out
}

// Count returns the number of active subscriptions.
func (d *Directory) Count(ctx context.Context) int {
	return len(d.Subscriptions(ctx))
}

// HasMultiple reports whether at least two subscriptions are active.
func (d *Directory) HasMultiple(ctx context.Context) bool {
	return d.Count(ctx) >= 2
}

// Describe annotates a channel id for logs, falling back to the bare id when
// no metadata is available.
func (d *Directory) Describe(ctx context.Context, id models.ChannelID) string {
	if id.IsDefault() {
		return "default channel"
	}
	for _, info := range d.Subscriptions(ctx) {
		if info.ID == id {
			return info.Label()
		}
	}
	return fmt.Sprintf("SIM ID: %d", int(id))
}
