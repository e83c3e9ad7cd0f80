package turbo

import (
	"errors"
	"fmt"
	"log"
	"time"

	"turbofire/internal/input"
)

// errReleased stops a run because its input is no longer held.
var errReleased = errors.New("input released")

// run is the handle of one running timer. It is registered in e.running for
// as long as the timer is live.
type run struct {
	id       uint64
	input    input.LogicalInput
	interval time.Duration
	ticker   Ticker
	done     chan struct{}
}

// Start begins turbo fire for the binding of in. It reports whether a new
// timer was started; an input without a binding or with a running timer is a
// no-op.
func (e *Engine) Start(in input.LogicalInput) bool {
	e.mu.Lock()
	if !e.startLocked(in) {
		e.mu.Unlock()
		return false
	}
	e.unlockAndNotifyRunning(in)
	return true
}

// Stop cancels the running timer of in. Stopping an idle input is a no-op.
func (e *Engine) Stop(in input.LogicalInput) bool {
	e.mu.Lock()
	if !e.stopLocked(in, nil) {
		e.mu.Unlock()
		return false
	}
	e.unlockAndNotifyRunning(in)
	return true
}

// IsRunning reports whether a timer is registered for in.
func (e *Engine) IsRunning(in input.LogicalInput) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[in]
	return ok
}

// RunningCount returns the number of live timers.
func (e *Engine) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

func (e *Engine) startLocked(in input.LogicalInput) bool {
	if _, ok := e.running[in]; ok {
		return false
	}
	b, ok := e.bindings[in]
	if !ok {
		return false
	}

	e.nextRun++
	interval := time.Duration(b.intervalMs) * time.Millisecond
	r := &run{
		id:       e.nextRun,
		input:    in,
		interval: interval,
		ticker:   e.opts.NewTicker(interval),
		done:     make(chan struct{}),
	}
	e.running[in] = r

	e.wg.Add(1)
	go e.loop(r)

	e.debugf("Turbo: Started %s every %v (run %d)", in, interval, r.id)
	return true
}

// stopLocked cancels the run registered for in. When only is set the
// registration is removed only if it still belongs to that run, so a timer
// stopping itself cannot cancel a newer run of the same input.
func (e *Engine) stopLocked(in input.LogicalInput, only *run) bool {
	r, ok := e.running[in]
	if !ok || (only != nil && r != only) {
		return false
	}
	delete(e.running, in)
	r.ticker.Stop()
	close(r.done)
	return true
}

// unlockAndNotifyRunning reports the running state of in to listeners and
// releases e.mu. Nothing is reported once the binding is gone.
func (e *Engine) unlockAndNotifyRunning(in input.LogicalInput) {
	b, ok := e.bindings[in]
	if !ok {
		e.mu.Unlock()
		return
	}
	info := e.infoLocked(b)
	e.unlockAndNotify(func(l Listener) { l.RunningChanged(info) })
}

func (e *Engine) loop(r *run) {
	defer e.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C():
		}

		select {
		case <-r.done:
			return
		default:
		}

		if err := e.tick(r.input); err != nil {
			if errors.Is(err, errReleased) {
				e.debugf("Turbo: %s released, stopping run %d", r.input, r.id)
			} else {
				log.Printf("Turbo: %s stopped: %v", r.input, err)
			}
			e.mu.Lock()
			if e.stopLocked(r.input, r) {
				e.unlockAndNotifyRunning(r.input)
			} else {
				e.mu.Unlock()
			}
			return
		}
	}
}

// tick polls the physical state of in and emits one synthetic press when it
// is still held. Any failure, including a panic in a platform call, is
// returned so the run stops.
func (e *Engine) tick(in input.LogicalInput) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	pressed, err := e.source.IsPressed(in)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if !pressed {
		return errReleased
	}

	if err := e.injector.Inject(in, true); err != nil {
		return fmt.Errorf("inject down: %w", err)
	}
	if hold := time.Duration(e.keyHold.Load()); in.Kind == input.Keyboard && hold > 0 {
		time.Sleep(hold)
	}
	if err := e.injector.Inject(in, false); err != nil {
		return fmt.Errorf("inject up: %w", err)
	}
	return nil
}
