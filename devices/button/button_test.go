package button

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"projectlab-go/bus"
	"projectlab-go/hal"
	"projectlab-go/hal/halfake"
	"projectlab-go/types"
)

func newButton(t *testing.T, conn *bus.Connection) (*PushButton, *halfake.Pin, *clock.Mock, *[]types.ButtonEventKind) {
	t.Helper()
	ctrl := halfake.NewController("mcp1")
	clk := clock.NewMock()
	b, err := FromPin(hal.Pin{Name: "GP0", Controller: ctrl}, hal.PullUp, Config{
		Name:      "up",
		ActiveLow: true,
		Conn:      conn,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("FromPin: %v", err)
	}
	var kinds []types.ButtonEventKind
	b.OnEvent(func(ev types.ButtonEvent) { kinds = append(kinds, ev.Kind) })
	return b, ctrl.Pin("GP0"), clk, &kinds
}

func TestClickAndLongClick(t *testing.T) {
	b, pin, clk, kinds := newButton(t, nil)
	if b.State() {
		t.Fatal("pulled-up idle line must read released")
	}

	pin.Drive(false)
	clk.Add(100 * time.Millisecond)
	pin.Drive(true)

	clk.Add(100 * time.Millisecond)
	pin.Drive(false)
	clk.Add(DefaultLongClick)
	pin.Drive(true)

	want := []types.ButtonEventKind{
		types.ButtonPressed, types.ButtonReleased, types.ButtonClicked,
		types.ButtonPressed, types.ButtonReleased, types.ButtonLongClicked,
	}
	if diff := cmp.Diff(want, *kinds); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestDebounceDropsBounce(t *testing.T) {
	b, pin, clk, kinds := newButton(t, nil)

	pin.Drive(false)
	clk.Add(2 * time.Millisecond)
	pin.Drive(true) // bounce
	clk.Add(2 * time.Millisecond)
	pin.Drive(false)

	if len(*kinds) != 1 || !b.State() {
		t.Fatalf("events %v pressed=%v", *kinds, b.State())
	}
}

func TestActiveHighButton(t *testing.T) {
	host := halfake.NewDevice(types.FamilyF7FeatherV2)
	b, err := FromPin(hal.Pin{Name: "D15", Controller: host}, hal.PullDown, Config{Name: "up", Debounce: -1})
	if err != nil {
		t.Fatal(err)
	}
	host.Pin("D15").Drive(true)
	if !b.State() {
		t.Fatal("high level should read pressed")
	}
}

func TestPublishesOnBus(t *testing.T) {
	bb := bus.NewBus(8)
	conn := bb.NewConnection("test")
	events := conn.Subscribe(TopicPrefix.Append("up"))
	value := conn.Subscribe(TopicPrefix.Append("up", "value"))

	_, pin, _, _ := newButton(t, conn)
	pin.Drive(false)

	m := <-events.Channel()
	ev, ok := m.Payload.(types.ButtonEvent)
	if !ok || ev.Kind != types.ButtonPressed || ev.Name != "up" {
		t.Fatalf("event %#v", m.Payload)
	}
	v := <-value.Channel()
	if !v.Retained || !v.Payload.(types.ButtonValue).Pressed {
		t.Fatalf("value %#v", v)
	}
}

func TestCloseReleasesPort(t *testing.T) {
	b, pin, _, kinds := newButton(t, nil)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	pin.Drive(false)
	if len(*kinds) != 0 || pin.Open() != 0 {
		t.Fatalf("closed button still wired: %v open=%d", *kinds, pin.Open())
	}
}
