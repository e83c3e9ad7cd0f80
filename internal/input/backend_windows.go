//go:build windows

package input

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
	procKeybdEvent       = user32.NewProc("keybd_event")
	procMouseEvent       = user32.NewProc("mouse_event")
)

const (
	KEYEVENTF_KEYUP = 0x0002

	MOUSEEVENTF_LEFTDOWN   = 0x0002
	MOUSEEVENTF_LEFTUP     = 0x0004
	MOUSEEVENTF_RIGHTDOWN  = 0x0008
	MOUSEEVENTF_RIGHTUP    = 0x0010
	MOUSEEVENTF_MIDDLEDOWN = 0x0020
	MOUSEEVENTF_MIDDLEUP   = 0x0040

	asyncKeyDown = 0x8000
)

// windowsBackend polls GetAsyncKeyState and injects with keybd_event/mouse_event.
type windowsBackend struct{}

// NewBackend returns the Win32 input backend.
func NewBackend(cfg BackendConfig) (Backend, error) {
	if err := procGetAsyncKeyState.Find(); err != nil {
		return nil, fmt.Errorf("load GetAsyncKeyState: %w", err)
	}
	return &windowsBackend{}, nil
}

func (b *windowsBackend) IsPressed(in LogicalInput) (bool, error) {
	vk, ok := VirtualKey(in)
	if !ok {
		return false, nil
	}
	ret, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return uint16(ret)&asyncKeyDown != 0, nil
}

func (b *windowsBackend) Pressed() ([]LogicalInput, error) {
	return collectPressed(b.IsPressed)
}

func (b *windowsBackend) Inject(in LogicalInput, pressed bool) error {
	switch in.Kind {
	case Mouse:
		flags, ok := mouseFlags(in.Code, pressed)
		if !ok {
			return nil
		}
		procMouseEvent.Call(flags, 0, 0, 0, 0)
	case Keyboard:
		vk, ok := VirtualKey(in)
		if !ok {
			return nil
		}
		var flags uintptr
		if !pressed {
			flags = KEYEVENTF_KEYUP
		}
		procKeybdEvent.Call(uintptr(vk), 0, flags, 0)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInput, in)
	}
	return nil
}

func (b *windowsBackend) Close() error {
	return nil
}

func mouseFlags(button string, pressed bool) (uintptr, bool) {
	switch button {
	case LButton:
		if pressed {
			return MOUSEEVENTF_LEFTDOWN, true
		}
		return MOUSEEVENTF_LEFTUP, true
	case RButton:
		if pressed {
			return MOUSEEVENTF_RIGHTDOWN, true
		}
		return MOUSEEVENTF_RIGHTUP, true
	case MButton:
		if pressed {
			return MOUSEEVENTF_MIDDLEDOWN, true
		}
		return MOUSEEVENTF_MIDDLEUP, true
	}
	return 0, false
}
