//go:build linux

package hook

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"turbofire/internal/input"
)

const (
	idleWait  = 5 * time.Millisecond
	errorWait = 25 * time.Millisecond
)

type platformState struct {
	devices []*evdev.InputDevice
	done    chan struct{}
	wg      sync.WaitGroup
}

func (m *Manager) startPlatform() error {
	devices, err := input.OpenPhysicalDevices(m.devicePath)
	if err != nil {
		return fmt.Errorf("open capture devices: %w", err)
	}
	for _, dev := range devices {
		if err := dev.NonBlock(); err != nil {
			input.CloseDevices(devices)
			return fmt.Errorf("set nonblocking mode for %s: %w", dev.Path(), err)
		}
	}

	m.platform.devices = devices
	m.platform.done = make(chan struct{})
	for _, dev := range devices {
		m.platform.wg.Add(1)
		go m.readLoop(dev, m.platform.done)
	}

	log.Printf("Hook: Listening on %d evdev device(s)", len(devices))
	return nil
}

func (m *Manager) stopPlatform() {
	close(m.platform.done)
	m.platform.wg.Wait()
	input.CloseDevices(m.platform.devices)
	m.platform.devices = nil
}

func (m *Manager) readLoop(dev *evdev.InputDevice, done <-chan struct{}) {
	defer m.platform.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		event, err := dev.ReadOne()
		if err != nil {
			if isWouldBlockError(err) {
				if !wait(done, idleWait) {
					return
				}
				continue
			}
			if isDeviceClosedError(err) {
				log.Printf("Hook: %s went away: %v", dev.Path(), err)
				return
			}
			if !wait(done, errorWait) {
				return
			}
			continue
		}
		if event == nil || event.Type != evdev.EV_KEY {
			continue
		}

		in, ok := input.FromEvdevCode(event.Code)
		if !ok {
			continue
		}
		// Value 2 is kernel auto-repeat.
		switch event.Value {
		case 1:
			m.UpdateState(in, true)
		case 0:
			m.UpdateState(in, false)
		}
	}
}

func wait(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}

func isDeviceClosedError(err error) bool {
	return errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENODEV)
}

func isWouldBlockError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
