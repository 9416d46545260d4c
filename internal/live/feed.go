package live

import (
	"context"

	"github.com/jgoulah/ampdash/pkg/models"
)

// Handler receives every decoded reading
type Handler func(models.Reading)

// Feed is a subscription to a stream of sensor readings. Run blocks until ctx
// is cancelled or the transport fails.
type Feed interface {
	Run(ctx context.Context, handle Handler) error
}

// Pump runs feed and adds every reading to state
func Pump(ctx context.Context, feed Feed, state *State) error {
	return feed.Run(ctx, func(r models.Reading) {
		state.Add(r)
	})
}
