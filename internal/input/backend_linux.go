//go:build linux

package input

import (
	"fmt"
	"sort"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// linuxBackend reads hardware key state with EVIOCGKEY on the physical
// devices and injects through a separate uinput device. The kernel tracks key
// state per device, so injected events never appear in the polled state.
type linuxBackend struct {
	mu       sync.Mutex
	devices  []*evdev.InputDevice
	injector *evdev.InputDevice
}

// NewBackend opens the physical input devices and creates the uinput injector.
func NewBackend(cfg BackendConfig) (Backend, error) {
	devices, err := OpenPhysicalDevices(cfg.DevicePath)
	if err != nil {
		return nil, err
	}

	id := evdev.InputID{
		BusType: uint16(evdev.BUS_VIRTUAL),
		Vendor:  0x1,
		Product: 0x1,
		Version: 1,
	}
	injector, err := evdev.CreateDevice(VirtualDeviceName, id, map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: injectableCodes(),
	})
	if err != nil {
		CloseDevices(devices)
		return nil, fmt.Errorf("create uinput device: %w", err)
	}

	return &linuxBackend{devices: devices, injector: injector}, nil
}

func injectableCodes() []evdev.EvCode {
	codes := make([]evdev.EvCode, 0, len(codeByInput))
	for _, code := range codeByInput {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return codes[i] < codes[j]
	})
	return codes
}

func (b *linuxBackend) IsPressed(in LogicalInput) (bool, error) {
	code, ok := EvdevCode(in)
	if !ok {
		return false, nil
	}
	states, err := b.keyStates()
	if err != nil {
		return false, err
	}
	for _, state := range states {
		if state[code] {
			return true, nil
		}
	}
	return false, nil
}

func (b *linuxBackend) Pressed() ([]LogicalInput, error) {
	states, err := b.keyStates()
	if err != nil {
		return nil, err
	}
	return collectPressed(func(in LogicalInput) (bool, error) {
		code, ok := EvdevCode(in)
		if !ok {
			return false, nil
		}
		for _, state := range states {
			if state[code] {
				return true, nil
			}
		}
		return false, nil
	})
}

func (b *linuxBackend) keyStates() ([]evdev.StateMap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]evdev.StateMap, 0, len(b.devices))
	var lastErr error
	for _, dev := range b.devices {
		state, err := dev.State(evdev.EV_KEY)
		if err != nil {
			lastErr = err
			continue
		}
		states = append(states, state)
	}
	if len(states) == 0 && lastErr != nil {
		return nil, fmt.Errorf("read key state: %w", lastErr)
	}
	return states, nil
}

func (b *linuxBackend) Inject(in LogicalInput, pressed bool) error {
	code, ok := EvdevCode(in)
	if !ok {
		return nil
	}
	var value int32
	if pressed {
		value = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injector == nil {
		return fmt.Errorf("injector closed")
	}
	if err := b.injector.WriteOne(&evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value}); err != nil {
		return fmt.Errorf("write %s: %w", in, err)
	}
	if err := b.injector.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}); err != nil {
		return fmt.Errorf("write sync: %w", err)
	}
	return nil
}

func (b *linuxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	CloseDevices(b.devices)
	b.devices = nil
	if b.injector == nil {
		return nil
	}
	err := b.injector.Close()
	b.injector = nil
	return err
}
