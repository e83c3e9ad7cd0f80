// Package input provides the logical input model together with platform
// key-state polling and synthetic input injection.
package input

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the source category of a logical input.
type Kind string

const (
	Keyboard Kind = "keyboard"
	Mouse    Kind = "mouse"
)

// Mouse button codes.
const (
	LButton = "LButton"
	RButton = "RButton"
	MButton = "MButton"
)

var (
	// ErrUnknownInput is returned when a name cannot be resolved to a key or button.
	ErrUnknownInput = errors.New("unknown input")

	// ErrUnsupported is returned by backends on platforms without an implementation.
	ErrUnsupported = errors.New("input backend not supported on this platform")
)

// LogicalInput identifies a keyboard key or mouse button independent of the
// platform representation. Two values are equal iff Kind and Code match.
type LogicalInput struct {
	Kind Kind
	Code string
}

// Key returns the keyboard input with the given key name.
func Key(code string) LogicalInput {
	return LogicalInput{Kind: Keyboard, Code: code}
}

// Button returns the mouse input with the given button name.
func Button(code string) LogicalInput {
	return LogicalInput{Kind: Mouse, Code: code}
}

// String returns the qualified form, e.g. "keyboard_A" or "mouse_LButton".
func (l LogicalInput) String() string {
	if l.IsZero() {
		return ""
	}
	return string(l.Kind) + "_" + l.Code
}

// IsZero reports whether l is the empty input.
func (l LogicalInput) IsZero() bool {
	return l.Kind == "" && l.Code == ""
}

// IsMouse reports whether l is a mouse button.
func (l LogicalInput) IsMouse() bool {
	return l.Kind == Mouse
}

// MarshalText implements encoding.TextMarshaler.
func (l LogicalInput) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LogicalInput) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse resolves a user supplied name into a LogicalInput.
//
// Accepted forms are the qualified "keyboard_<key>" / "mouse_<button>" ids and
// bare names. A bare name is a mouse button only when it is exactly one of
// LButton, RButton or MButton; everything else is looked up in the key table.
// Matching is case-insensitive and the result carries the canonical name.
func Parse(name string) (LogicalInput, error) {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return LogicalInput{}, fmt.Errorf("%w: empty name", ErrUnknownInput)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, string(Keyboard)+"_"):
		code, ok := canonicalKey(raw[len(Keyboard)+1:])
		if !ok {
			return LogicalInput{}, fmt.Errorf("%w: %q", ErrUnknownInput, name)
		}
		return Key(code), nil
	case strings.HasPrefix(lower, string(Mouse)+"_"):
		code, ok := canonicalButton(raw[len(Mouse)+1:])
		if !ok {
			return LogicalInput{}, fmt.Errorf("%w: %q", ErrUnknownInput, name)
		}
		return Button(code), nil
	}

	if code, ok := canonicalButton(raw); ok {
		return Button(code), nil
	}
	if code, ok := canonicalKey(raw); ok {
		return Key(code), nil
	}
	return LogicalInput{}, fmt.Errorf("%w: %q", ErrUnknownInput, name)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(name string) LogicalInput {
	in, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return in
}

// StateSource reports the live physical state of keys and buttons.
// Implementations must be non-blocking and safe to call from any goroutine.
type StateSource interface {
	// IsPressed reports whether in is currently held down. Inputs that cannot
	// be resolved to a platform identifier report false with a nil error.
	IsPressed(in LogicalInput) (bool, error)

	// Pressed returns every currently held input: keyboard keys first in key
	// table order, then mouse buttons in LButton, RButton, MButton order.
	Pressed() ([]LogicalInput, error)
}

// Injector emits synthetic input. Injected events must not be reported as
// physical state by the StateSource of the same backend.
type Injector interface {
	Inject(in LogicalInput, pressed bool) error
}

// Backend bundles a StateSource and an Injector for one platform.
type Backend interface {
	StateSource
	Injector
	Close() error
}

// BackendConfig carries platform specific backend options.
type BackendConfig struct {
	// DevicePath restricts the Linux backend to one evdev device.
	DevicePath string
}
