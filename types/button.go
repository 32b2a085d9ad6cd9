package types

// ButtonEventKind is the tag carried by a ButtonEvent.
type ButtonEventKind string

const (
	ButtonPressed     ButtonEventKind = "pressed"
	ButtonReleased    ButtonEventKind = "released"
	ButtonClicked     ButtonEventKind = "clicked"
	ButtonLongClicked ButtonEventKind = "long_clicked"
)

// ButtonEvent is published under projectlab/button/<name>.
type ButtonEvent struct {
	Name string          `json:"name"`
	Kind ButtonEventKind `json:"kind"`
	TsMs int64           `json:"ts_ms"`
}

// ButtonValue is the retained level of a button.
type ButtonValue struct {
	Pressed bool `json:"pressed"`
}
