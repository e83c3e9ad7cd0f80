package turbo

import (
	"slices"

	"turbofire/internal/input"
)

type binding struct {
	input      input.LogicalInput
	intervalMs int
}

// The *Locked helpers require e.mu.

func (e *Engine) addBindingLocked(in input.LogicalInput) *binding {
	b := &binding{input: in, intervalMs: e.defaultIntervalMs}
	e.bindings[in] = b
	e.order = append(e.order, in)
	return b
}

func (e *Engine) removeBindingLocked(in input.LogicalInput) bool {
	if _, ok := e.bindings[in]; !ok {
		return false
	}
	delete(e.bindings, in)
	if i := slices.Index(e.order, in); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	return true
}

func (e *Engine) infoLocked(b *binding) BindingInfo {
	_, running := e.running[b.input]
	return BindingInfo{Input: b.input, IntervalMs: b.intervalMs, Running: running}
}

// Bindings returns every binding in insertion order.
func (e *Engine) Bindings() []BindingInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bindingsLocked()
}

func (e *Engine) bindingsLocked() []BindingInfo {
	out := make([]BindingInfo, 0, len(e.order))
	for _, in := range e.order {
		out = append(out, e.infoLocked(e.bindings[in]))
	}
	return out
}

// Binding returns the binding for in.
func (e *Engine) Binding(in input.LogicalInput) (BindingInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bindings[in]
	if !ok {
		return BindingInfo{}, false
	}
	return e.infoLocked(b), true
}
