// Package turbo implements the turbo-fire core: the binding registry, the
// per-binding repeat timers and the trigger designation controller.
package turbo

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"turbofire/internal/input"
)

const (
	// MinIntervalMs and MaxIntervalMs bound a binding's repeat interval.
	MinIntervalMs = 1
	MaxIntervalMs = 150

	// DefaultIntervalMs is the interval given to newly created bindings.
	DefaultIntervalMs = 10

	// DefaultKeyHold is the pause between a synthetic key down and key up.
	DefaultKeyHold = 5 * time.Millisecond
)

// ErrNoBinding is returned when an operation names an input that has no binding.
var ErrNoBinding = errors.New("no turbo binding for input")

// Ticker is a periodic time source. It mirrors time.Ticker so tests can
// drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop() { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	DefaultIntervalMs int
	KeyHold           time.Duration
	NewTicker         TickerFunc
	Verbose           bool
}

func (o Options) withDefaults() Options {
	if o.DefaultIntervalMs == 0 {
		o.DefaultIntervalMs = DefaultIntervalMs
	}
	o.DefaultIntervalMs = ClampInterval(o.DefaultIntervalMs)
	if o.KeyHold < 0 {
		o.KeyHold = 0
	}
	if o.NewTicker == nil {
		o.NewTicker = NewStdTicker
	}
	return o
}

// ClampInterval limits ms to [MinIntervalMs, MaxIntervalMs].
func ClampInterval(ms int) int {
	if ms < MinIntervalMs {
		return MinIntervalMs
	}
	if ms > MaxIntervalMs {
		return MaxIntervalMs
	}
	return ms
}

// BindingInfo is a snapshot of one turbo binding.
type BindingInfo struct {
	Input      input.LogicalInput `json:"input"`
	IntervalMs int                `json:"interval_ms"`
	Running    bool               `json:"running"`
}

// Listener is the display collaborator. Callbacks arrive in the order the
// engine changed state and outside the engine lock, but a listener must not
// call mutating Engine methods synchronously from a callback.
type Listener interface {
	DesignationPending()
	TriggerChanged(in input.LogicalInput)
	BindingAdded(b BindingInfo)
	BindingRemoved(in input.LogicalInput)
	IntervalChanged(b BindingInfo)
	RunningChanged(b BindingInfo)
}

// Snapshot is the complete engine state read under one lock.
type Snapshot struct {
	Trigger             input.LogicalInput
	AwaitingDesignation bool
	Bindings            []BindingInfo
}

// BaseListener implements Listener with no-ops for embedding.
type BaseListener struct{}

func (BaseListener) DesignationPending() {}
func (BaseListener) TriggerChanged(in input.LogicalInput) {}
func (BaseListener) BindingAdded(b BindingInfo) {}
func (BaseListener) BindingRemoved(in input.LogicalInput) {}
func (BaseListener) IntervalChanged(b BindingInfo) {}
func (BaseListener) RunningChanged(b BindingInfo) {}

// Engine owns every piece of shared turbo state. A single mutex guards the
// binding registry, the running timer registrations and the trigger state.
type Engine struct {
	source   input.StateSource
	injector input.Injector
	opts     Options

	mu       sync.Mutex
	bindings map[input.LogicalInput]*binding
	order    []input.LogicalInput
	running  map[input.LogicalInput]*run
	nextRun  uint64
	trigger  input.LogicalInput
	awaiting bool

	// defaultIntervalMs is guarded by mu; the tick path reads the atomics.
	defaultIntervalMs int
	keyHold           atomic.Int64
	verbose           atomic.Bool

	// notifyMu keeps listener callbacks in state-change order.
	notifyMu  sync.Mutex
	lmu       sync.RWMutex
	listeners []Listener

	wg sync.WaitGroup
}

// NewEngine creates an engine polling source and emitting through injector.
func NewEngine(source input.StateSource, injector input.Injector, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		source:            source,
		injector:          injector,
		opts:              opts,
		bindings:          make(map[input.LogicalInput]*binding),
		running:           make(map[input.LogicalInput]*run),
		defaultIntervalMs: opts.DefaultIntervalMs,
	}
	e.keyHold.Store(int64(opts.KeyHold))
	e.verbose.Store(opts.Verbose)
	return e
}

// ApplySettings updates the tunables that can change while running. The
// default interval applies to bindings created afterwards; existing bindings
// keep their own interval.
func (e *Engine) ApplySettings(defaultIntervalMs int, keyHold time.Duration, verbose bool) {
	if keyHold < 0 {
		keyHold = 0
	}
	e.mu.Lock()
	e.defaultIntervalMs = ClampInterval(defaultIntervalMs)
	e.mu.Unlock()
	e.keyHold.Store(int64(keyHold))
	e.verbose.Store(verbose)
}

// DefaultInterval returns the interval given to new bindings.
func (e *Engine) DefaultInterval() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defaultIntervalMs
}

// Snapshot returns the trigger, designation flag and bindings as one
// consistent view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// WithSnapshot calls fn with the current snapshot in listener order: fn runs
// after every notification for earlier changes and before any notification
// for later ones. The same rules as for Listener callbacks apply to fn.
func (e *Engine) WithSnapshot(fn func(Snapshot)) {
	e.mu.Lock()
	snap := e.snapshotLocked()
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()
	fn(snap)
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Trigger:             e.trigger,
		AwaitingDesignation: e.awaiting,
		Bindings:            e.bindingsLocked(),
	}
}

// AddListener registers a display collaborator.
func (e *Engine) AddListener(l Listener) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Attach hands l the current snapshot through seed and registers it in the
// same step, so l sees every later change exactly once.
func (e *Engine) Attach(l Listener, seed func(Snapshot)) {
	e.WithSnapshot(func(s Snapshot) {
		seed(s)
		e.AddListener(l)
	})
}

// RequestDesignation makes the next observed input the new trigger.
func (e *Engine) RequestDesignation() {
	e.mu.Lock()
	e.awaiting = true
	e.unlockAndNotify(func(l Listener) { l.DesignationPending() })
	log.Printf("Engine: Waiting for trigger input...")
}

// SetTrigger designates in as the trigger directly and leaves designation mode.
func (e *Engine) SetTrigger(in input.LogicalInput) {
	e.mu.Lock()
	e.trigger = in
	e.awaiting = false
	e.unlockAndNotify(func(l Listener) { l.TriggerChanged(in) })
	log.Printf("Engine: Trigger set to %s", in)
}

// Trigger returns the designated trigger, if any.
func (e *Engine) Trigger() (input.LogicalInput, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trigger, !e.trigger.IsZero()
}

// AwaitingDesignation reports whether the next input will become the trigger.
func (e *Engine) AwaitingDesignation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.awaiting
}

// EditInterval changes the configured interval of a binding, clamped to
// [MinIntervalMs, MaxIntervalMs]. A running timer keeps its current period;
// the new value applies from the next start.
func (e *Engine) EditInterval(in input.LogicalInput, ms int) (BindingInfo, error) {
	ms = ClampInterval(ms)

	e.mu.Lock()
	b, ok := e.bindings[in]
	if !ok {
		e.mu.Unlock()
		return BindingInfo{}, ErrNoBinding
	}
	b.intervalMs = ms
	info := e.infoLocked(b)
	e.unlockAndNotify(func(l Listener) { l.IntervalChanged(info) })
	return info, nil
}

// RemoveBinding deletes the binding for in and cancels its timer.
func (e *Engine) RemoveBinding(in input.LogicalInput) error {
	e.mu.Lock()
	if _, ok := e.bindings[in]; !ok {
		e.mu.Unlock()
		return ErrNoBinding
	}
	e.stopLocked(in, nil)
	e.removeBindingLocked(in)
	e.unlockAndNotify(func(l Listener) { l.BindingRemoved(in) })
	log.Printf("Engine: Removed binding %s", in)
	return nil
}

// RemoveAll deletes every binding and cancels every timer.
func (e *Engine) RemoveAll() {
	e.mu.Lock()
	removed := append([]input.LogicalInput(nil), e.order...)
	for _, in := range removed {
		e.stopLocked(in, nil)
		e.removeBindingLocked(in)
	}
	e.unlockAndNotify(func(l Listener) {
		for _, in := range removed {
			l.BindingRemoved(in)
		}
	})
	if len(removed) > 0 {
		log.Printf("Engine: Removed %d binding(s)", len(removed))
	}
}

// Shutdown cancels every running timer and waits for the timer goroutines to
// exit. Bindings are kept.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for in := range e.running {
		e.stopLocked(in, nil)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// unlockAndNotify releases e.mu and delivers fn to every listener while
// holding notifyMu, so deliveries cannot overtake each other.
func (e *Engine) unlockAndNotify(fn func(Listener)) {
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	e.lmu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.lmu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

func (e *Engine) debugf(format string, args ...any) {
	if e.verbose.Load() {
		log.Printf(format, args...)
	}
}
