// Package input turns interrupt activity on the panel's buttons and joystick
// into typed events.
package input

import (
	"errors"
	"fmt"
)

// Event is one of the eight logical input events.
type Event uint8

const (
	Button1Press Event = iota + 1
	Button2Press
	Button3Press
	JoystickUp
	JoystickDown
	JoystickLeft
	JoystickRight
	JoystickPressed
)

// ErrUnknownEvent is returned by ParseEvent for text that names no Event.
var ErrUnknownEvent = errors.New("input: unknown event")

var eventNames = [...]string{
	Button1Press:    "button1",
	Button2Press:    "button2",
	Button3Press:    "button3",
	JoystickUp:      "joystick_up",
	JoystickDown:    "joystick_down",
	JoystickLeft:    "joystick_left",
	JoystickRight:   "joystick_right",
	JoystickPressed: "joystick_pressed",
}

// Events lists every valid Event.
func Events() []Event {
	return []Event{
		Button1Press, Button2Press, Button3Press,
		JoystickUp, JoystickDown, JoystickLeft, JoystickRight, JoystickPressed,
	}
}

// Valid reports whether e is one of the eight events.
func (e Event) Valid() bool {
	return e >= Button1Press && e <= JoystickPressed
}

// String returns the canonical wire form, e.g. "button1" or "joystick_up".
func (e Event) String() string {
	if !e.Valid() {
		return fmt.Sprintf("event(%d)", uint8(e))
	}
	return eventNames[e]
}

// ParseEvent is the inverse of Event.String.
func ParseEvent(s string) (Event, error) {
	for _, e := range Events() {
		if eventNames[e] == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Event) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, uint8(e))
	}
	return []byte(eventNames[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Event) UnmarshalText(b []byte) error {
	ev, err := ParseEvent(string(b))
	if err != nil {
		return err
	}
	*e = ev
	return nil
}
