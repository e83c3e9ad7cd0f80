//go:build linux

package input

import (
	"fmt"
	"os"
	"sort"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// VirtualDeviceName is the uinput device created for injection.
const VirtualDeviceName = "turbofire-virtual-input"

// OpenPhysicalDevices opens every non-virtual evdev device that reports key
// or button events. When devicePath is set only that device is opened.
// Virtual devices, including the injector's own uinput device, are skipped so
// synthetic input never shows up as physical state.
func OpenPhysicalDevices(devicePath string) ([]*evdev.InputDevice, error) {
	if devicePath != "" {
		dev, err := evdev.OpenWithFlags(devicePath, os.O_RDONLY)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", devicePath, err)
		}
		if len(dev.CapableEvents(evdev.EV_KEY)) == 0 {
			_ = dev.Close()
			return nil, fmt.Errorf("%s does not expose key/button events", devicePath)
		}
		return []*evdev.InputDevice{dev}, nil
	}

	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Path < paths[j].Path
	})

	devices := make([]*evdev.InputDevice, 0, len(paths))
	for _, path := range paths {
		dev, err := evdev.OpenWithFlags(path.Path, os.O_RDONLY)
		if err != nil {
			continue
		}
		name := path.Name
		if actual, nameErr := dev.Name(); nameErr == nil && actual != "" {
			name = actual
		}
		if isVirtualDevice(dev, name) || len(dev.CapableEvents(evdev.EV_KEY)) == 0 {
			_ = dev.Close()
			continue
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no readable input devices with key/button events found")
	}
	return devices, nil
}

// CloseDevices closes every device, ignoring errors.
func CloseDevices(devices []*evdev.InputDevice) {
	for _, dev := range devices {
		_ = dev.Close()
	}
}

func isVirtualDevice(dev *evdev.InputDevice, name string) bool {
	if id, err := dev.InputID(); err == nil && id.BusType == uint16(evdev.BUS_VIRTUAL) {
		return true
	}
	return strings.EqualFold(name, VirtualDeviceName)
}
