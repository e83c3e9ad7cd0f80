package turbo

import (
	"log"

	"turbofire/internal/input"
)

// OnInputDown consumes one observed key-down or mouse-down event. Events must
// be delivered one at a time in observation order.
//
//   - awaiting designation: in becomes the trigger.
//   - in is the trigger: the first other held input toggles its binding.
//   - otherwise: the binding of in, if any, starts firing.
func (e *Engine) OnInputDown(in input.LogicalInput) {
	e.mu.Lock()

	if e.awaiting {
		e.trigger = in
		e.awaiting = false
		e.unlockAndNotify(func(l Listener) { l.TriggerChanged(in) })
		log.Printf("Engine: Trigger set to %s", in)
		return
	}

	if !e.trigger.IsZero() && in == e.trigger {
		e.mu.Unlock()
		e.combine(in)
		return
	}

	if e.startLocked(in) {
		e.unlockAndNotifyRunning(in)
		return
	}
	e.mu.Unlock()
}

// combine handles a trigger press: it looks for another held input and
// creates its binding, or removes it when one already exists.
func (e *Engine) combine(trigger input.LogicalInput) {
	pressed, err := e.source.Pressed()
	if err != nil {
		log.Printf("Engine: Failed to query pressed inputs: %v", err)
		return
	}

	other, ok := firstOther(pressed, trigger)
	if !ok {
		return
	}

	e.mu.Lock()
	if _, exists := e.bindings[other]; exists {
		e.stopLocked(other, nil)
		e.removeBindingLocked(other)
		e.unlockAndNotify(func(l Listener) { l.BindingRemoved(other) })
		log.Printf("Engine: Removed binding %s", other)
		return
	}

	info := e.infoLocked(e.addBindingLocked(other))
	e.unlockAndNotify(func(l Listener) { l.BindingAdded(info) })
	log.Printf("Engine: Added binding %s @ %d ms", other, info.IntervalMs)
}

// firstOther returns the first input in pressed that is not the trigger.
// pressed is in StateSource.Pressed order: keyboard before mouse.
func firstOther(pressed []input.LogicalInput, trigger input.LogicalInput) (input.LogicalInput, bool) {
	for _, in := range pressed {
		if in != trigger {
			return in, true
		}
	}
	return input.LogicalInput{}, false
}
