package channels

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

func TestStaticPreservesSlotOrder(t *testing.T) {
	dir := Static(
		Info{ID: 7, SlotIndex: 0, CarrierName: "alpha"},
		Info{ID: 3, SlotIndex: 1, CarrierName: "beta"},
	)

	got := dir.ListChannels(context.Background())
	want := []models.ChannelID{7, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !dir.HasMultiple(context.Background()) {
		t.Fatalf("expected dual channel directory")
	}
}

func TestSafeTreatsErrorAsEmpty(t *testing.T) {
	dir := Safe(func(context.Context) ([]Info, error) {
		return []Info{{ID: 1}}, errors.New("permission denied")
	}, zerolog.Nop())

	if got := dir.ListChannels(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list on error, got %v", got)
	}
}

func TestSafeRecoversPanic(t *testing.T) {
	dir := Safe(func(context.Context) ([]Info, error) {
		panic("service missing")
	}, zerolog.Nop())

	if got := dir.ListChannels(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list on panic, got %v", got)
	}
	if dir.Count(context.Background()) != 0 {
		t.Fatalf("expected zero count on panic")
	}
}

func TestSourceQueriedOnEveryCall(t *testing.T) {
	calls := 0
	dir := Safe(func(context.Context) ([]Info, error) {
		calls++
		ids := make([]Info, calls)
		for i := range ids {
			ids[i] = Info{ID: models.ChannelID(i + 1)}
		}
		return ids, nil
	}, zerolog.Nop())

	if got := len(dir.ListChannels(context.Background())); got != 1 {
		t.Fatalf("expected 1 channel on first call, got %d", got)
	}
	if got := len(dir.ListChannels(context.Background())); got != 2 {
		t.Fatalf("expected 2 channels on second call, got %d", got)
	}
}

func TestDescribe(t *testing.T) {
	dir := IDs(11, 12)
	ctx := context.Background()

	if got := dir.Describe(ctx, 12); got != "SIM 1, ID: 12" {
		t.Fatalf("unexpected description %q", got)
	}
	if got := dir.Describe(ctx, 99); got != "SIM ID: 99" {
		t.Fatalf("unexpected description for unknown id %q", got)
	}
	if got := dir.Describe(ctx, models.DefaultChannel); got != "default channel" {
		t.Fatalf("unexpected description for default %q", got)
	}
}

func TestNilDirectory(t *testing.T) {
	var dir *Directory
	if got := dir.ListChannels(context.Background()); len(got) != 0 {
		t.Fatalf("expected nil directory to list nothing, got %v", got)
	}
}
