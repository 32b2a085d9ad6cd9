package projectlab

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"projectlab-go/bus"
)

// DefaultDisplayResetDelay is the settle time between raising the display
// enable line and initialising the V3 panel controller.
const DefaultDisplayResetDelay = 50 * time.Millisecond

type options struct {
	log               *zap.Logger
	bus               *bus.Bus
	displayResetDelay time.Duration
	clk               clock.Clock
}

// Option configures Create.
type Option func(*options)

// WithLogger sets the logger; the board logs under the name "projectlab".
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBus publishes board state and button events on b.
func WithBus(b *bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithDisplayResetDelay overrides DefaultDisplayResetDelay.
func WithDisplayResetDelay(d time.Duration) Option {
	return func(o *options) { o.displayResetDelay = d }
}

// WithClock sets the clock used for delays and button timing.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

func buildOptions(opts []Option) options {
	o := options{displayResetDelay: DefaultDisplayResetDelay}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.clk == nil {
		o.clk = clock.New()
	}
	if o.displayResetDelay < 0 {
		o.displayResetDelay = 0
	}
	return o
}
