// Package button models a momentary push button on a digital interrupt
// port. Level changes are debounced and turned into pressed, released,
// clicked and long-clicked events, delivered to a callback and published
// on the bus.
package button

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"projectlab-go/bus"
	"projectlab-go/hal"
	"projectlab-go/types"
)

const (
	DefaultDebounce  = 20 * time.Millisecond
	DefaultLongClick = 500 * time.Millisecond
)

// TopicPrefix is where events are published; the button name is appended.
var TopicPrefix = bus.T("projectlab", "button")

type Config struct {
	Name string
	// ActiveLow is true when a press pulls the line low (pull-up wiring).
	ActiveLow bool
	// Debounce drops edges closer than this to the previous accepted one.
	// Zero takes DefaultDebounce; negative disables debouncing.
	Debounce time.Duration
	// LongClick is the hold time separating a click from a long click.
	// Defaults to DefaultLongClick.
	LongClick time.Duration
	// Conn publishes events under TopicPrefix/<Name> when set.
	Conn *bus.Connection
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type PushButton struct {
	port      hal.DigitalInterruptPort
	name      string
	activeLow bool
	debounce  time.Duration
	longClick time.Duration
	conn      *bus.Connection
	topic     bus.Topic
	clk       clock.Clock

	mu        sync.Mutex
	pressed   bool
	pressedAt time.Time
	lastEdge  time.Time
	onEvent   func(types.ButtonEvent)
}

// New takes ownership of port and starts listening for edges.
func New(port hal.DigitalInterruptPort, cfg Config) (*PushButton, error) {
	b := &PushButton{
		port:      port,
		name:      cfg.Name,
		activeLow: cfg.ActiveLow,
		debounce:  cfg.Debounce,
		longClick: cfg.LongClick,
		conn:      cfg.Conn,
		clk:       cfg.Clock,
	}
	if b.debounce == 0 {
		b.debounce = DefaultDebounce
	}
	if b.longClick <= 0 {
		b.longClick = DefaultLongClick
	}
	if b.clk == nil {
		b.clk = clock.New()
	}
	b.topic = TopicPrefix.Append(b.name)

	lvl, err := port.Read()
	if err != nil {
		return nil, err
	}
	b.pressed = b.logicalPressed(lvl)
	port.SetHandler(b.handle)
	return b, nil
}

// FromPin creates an interrupt port on both edges of pin and wraps it.
// The port is closed again if the button cannot be built.
func FromPin(pin hal.Pin, pull hal.Pull, cfg Config) (*PushButton, error) {
	port, err := pin.CreateDigitalInterruptPort(hal.EdgeBoth, pull)
	if err != nil {
		return nil, err
	}
	b, err := New(port, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return b, nil
}

func (b *PushButton) Name() string    { return b.name }
func (b *PushButton) Topic() bus.Topic { return b.topic }

// State reports whether the button is held, as last debounced.
func (b *PushButton) State() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}

// OnEvent installs the event callback. It runs on the interrupt path and
// must not block.
func (b *PushButton) OnEvent(fn func(types.ButtonEvent)) {
	b.mu.Lock()
	b.onEvent = fn
	b.mu.Unlock()
}

func (b *PushButton) Close() error {
	b.port.SetHandler(nil)
	return b.port.Close()
}

func (b *PushButton) handle(level bool) {
	now := b.clk.Now()
	pressed := b.logicalPressed(level)

	b.mu.Lock()
	if b.debounce > 0 && now.Sub(b.lastEdge) < b.debounce {
		b.mu.Unlock()
		return
	}
	if pressed == b.pressed {
		b.mu.Unlock()
		return
	}
	b.lastEdge = now
	b.pressed = pressed
	var kinds []types.ButtonEventKind
	if pressed {
		b.pressedAt = now
		kinds = append(kinds, types.ButtonPressed)
	} else {
		kinds = append(kinds, types.ButtonReleased)
		if now.Sub(b.pressedAt) >= b.longClick {
			kinds = append(kinds, types.ButtonLongClicked)
		} else {
			kinds = append(kinds, types.ButtonClicked)
		}
	}
	fn := b.onEvent
	b.mu.Unlock()

	for _, k := range kinds {
		ev := types.ButtonEvent{Name: b.name, Kind: k, TsMs: now.UnixMilli()}
		if fn != nil {
			fn(ev)
		}
		if b.conn != nil {
			b.conn.Publish(b.conn.NewMessage(b.topic, ev, false))
		}
	}
	if b.conn != nil {
		b.conn.Publish(b.conn.NewMessage(b.topic.Append("value"), types.ButtonValue{Pressed: pressed}, true))
	}
}

func (b *PushButton) logicalPressed(level bool) bool {
	if b.activeLow {
		return !level
	}
	return level
}
