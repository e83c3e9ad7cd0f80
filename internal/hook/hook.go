// Package hook observes global key-down and mouse-down events and delivers
// them, one at a time and in order, to a Handler.
package hook

import (
	"log"
	"sync"
	"sync/atomic"

	"turbofire/internal/input"
)

// queueSize bounds the events waiting for the dispatcher. The platform hook
// never blocks on it.
const queueSize = 256

// Handler consumes input-down events.
type Handler interface {
	OnInputDown(in input.LogicalInput)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(in input.LogicalInput)

func (f HandlerFunc) OnInputDown(in input.LogicalInput) { f(in) }

// Option configures a Manager.
type Option func(*Manager)

// WithDevicePath restricts Linux capture to one evdev device.
func WithDevicePath(path string) Option {
	return func(m *Manager) { m.devicePath = path }
}

// Manager owns the platform hooks and the dispatcher goroutine.
type Manager struct {
	handler    Handler
	devicePath string

	events  chan input.LogicalInput
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu      sync.Mutex
	down    map[input.LogicalInput]bool
	running bool

	platform platformState
}

// NewManager creates a hook manager delivering to h.
func NewManager(h Handler, opts ...Option) *Manager {
	m := &Manager{
		handler: h,
		events:  make(chan input.LogicalInput, queueSize),
		down:    make(map[input.LogicalInput]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start installs the platform hooks and begins dispatching. The hooks
// themselves are installed by startPlatform and removed by stopPlatform in
// hook_windows.go and hook_linux.go. hook_stub.go covers other platforms.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	m.startDispatch()
	if err := m.startPlatform(); err != nil {
		m.stopDispatch()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// Stop removes the hooks and waits for the dispatcher to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.stopPlatform()
	m.stopDispatch()
}

// Dropped returns how many events were discarded because the queue was full.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// UpdateState records a physical transition reported by a platform hook.
// Only the up-to-down edge is forwarded; auto-repeat downs are swallowed.
func (m *Manager) UpdateState(in input.LogicalInput, isDown bool) {
	m.mu.Lock()
	if !isDown {
		delete(m.down, in)
		m.mu.Unlock()
		return
	}
	if m.down[in] {
		m.mu.Unlock()
		return
	}
	m.down[in] = true
	m.mu.Unlock()

	select {
	case m.events <- in:
	default:
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("Hook: Event queue full, dropped %d event(s)", n)
		}
	}
}

func (m *Manager) startDispatch() {
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.dispatch(m.stop)
}

func (m *Manager) stopDispatch() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Manager) dispatch(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case in := <-m.events:
			m.deliver(in)
		}
	}
}

func (m *Manager) deliver(in input.LogicalInput) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Hook: Handler panicked on %s: %v", in, r)
		}
	}()
	m.handler.OnInputDown(in)
}
