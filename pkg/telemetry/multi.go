package telemetry

import (
	"context"
	"errors"

	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

// MultiBroadcaster publishes to every wrapped broadcaster and joins their errors.
type MultiBroadcaster []store.RealtimeBroadcaster

func (m MultiBroadcaster) Publish(ctx context.Context, channel string, payload any) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
