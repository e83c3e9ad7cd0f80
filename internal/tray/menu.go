package tray

import (
	"fmt"
	"slices"

	"turbofire/internal/input"
	"turbofire/internal/turbo"
)

// maxSlots is the number of binding rows pre-created in the menu. systray
// cannot remove items, so rows are hidden and reused instead.
const maxSlots = 16

// menuModel is the display state of the tray, kept apart from systray so it
// can be tested without a desktop session.
type menuModel struct {
	trigger  input.LogicalInput
	awaiting bool
	bindings []turbo.BindingInfo
}

type slotView struct {
	title   string
	input   input.LogicalInput
	visible bool
}

func (m *menuModel) sync(trigger input.LogicalInput, awaiting bool, bindings []turbo.BindingInfo) {
	m.trigger = trigger
	m.awaiting = awaiting
	m.bindings = slices.Clone(bindings)
}

func (m *menuModel) setTrigger(in input.LogicalInput) {
	m.trigger = in
	m.awaiting = false
}

func (m *menuModel) upsert(b turbo.BindingInfo) {
	if i := m.index(b.Input); i >= 0 {
		m.bindings[i] = b
		return
	}
	m.bindings = append(m.bindings, b)
}

func (m *menuModel) remove(in input.LogicalInput) {
	if i := m.index(in); i >= 0 {
		m.bindings = slices.Delete(m.bindings, i, i+1)
	}
}

func (m *menuModel) index(in input.LogicalInput) int {
	return slices.IndexFunc(m.bindings, func(b turbo.BindingInfo) bool { return b.Input == in })
}

func (m *menuModel) triggerLabel() string {
	switch {
	case m.awaiting:
		return "Trigger: press any key or button..."
	case m.trigger.IsZero():
		return "Trigger: (none)"
	default:
		return "Trigger: " + m.trigger.Code
	}
}

func (m *menuModel) tooltip() string {
	return fmt.Sprintf("turbofire | %s | %d binding(s)", m.triggerLabel(), len(m.bindings))
}

func (m *menuModel) slots() []slotView {
	views := make([]slotView, maxSlots)
	for i := range views {
		if i >= len(m.bindings) {
			continue
		}
		b := m.bindings[i]
		title := fmt.Sprintf("%s @ %d ms (click to remove)", b.Input.Code, b.IntervalMs)
		if b.Running {
			title = fmt.Sprintf("%s @ %d ms, firing (click to remove)", b.Input.Code, b.IntervalMs)
		}
		views[i] = slotView{
			title:   title,
			input:   b.Input,
			visible: true,
		}
	}
	return views
}

// overflow is the number of bindings that do not fit in the slot pool.
func (m *menuModel) overflow() int {
	if n := len(m.bindings) - maxSlots; n > 0 {
		return n
	}
	return 0
}
