package hal

import "projectlab-go/errcode"

// Pin is one physical pin: a name on a controller.
type Pin struct {
	Name       string
	Controller PinController
}

// Key identifies the physical pin ("mcu:PA3", "mcp2:GP1").
func (p Pin) Key() string {
	if p.Controller == nil {
		return ":" + p.Name
	}
	return p.Controller.Name() + ":" + p.Name
}

func (p Pin) IsZero() bool { return p.Name == "" && p.Controller == nil }

func (p Pin) String() string { return p.Key() }

func (p Pin) CreateDigitalOutputPort(initial bool) (DigitalOutputPort, error) {
	if p.Controller == nil {
		return nil, errcode.New(errcode.UnknownPin, "pin", p.Name)
	}
	return p.Controller.CreateDigitalOutputPort(p.Name, initial)
}

func (p Pin) CreateDigitalInterruptPort(edge Edge, pull Pull) (DigitalInterruptPort, error) {
	if p.Controller == nil {
		return nil, errcode.New(errcode.UnknownPin, "pin", p.Name)
	}
	return p.Controller.CreateDigitalInterruptPort(p.Name, edge, pull)
}
