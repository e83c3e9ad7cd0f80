package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbofire/internal/input"
	"turbofire/internal/turbo"
)

func TestTriggerLabel(t *testing.T) {
	var m menuModel
	assert.Equal(t, "Trigger: (none)", m.triggerLabel())

	m.awaiting = true
	assert.Equal(t, "Trigger: press any key or button...", m.triggerLabel())

	m.setTrigger(input.Button(input.MButton))
	assert.False(t, m.awaiting)
	assert.Equal(t, "Trigger: MButton", m.triggerLabel())
}

func TestSlotsFollowBindings(t *testing.T) {
	var m menuModel
	a := input.Key("A")
	left := input.Button(input.LButton)

	m.upsert(turbo.BindingInfo{Input: a, IntervalMs: 10})
	m.upsert(turbo.BindingInfo{Input: left, IntervalMs: 10})
	m.upsert(turbo.BindingInfo{Input: a, IntervalMs: 45})

	slots := m.slots()
	require.Len(t, slots, maxSlots)
	assert.Equal(t, slotView{title: "A @ 45 ms (click to remove)", input: a, visible: true}, slots[0])
	assert.Equal(t, left, slots[1].input)
	assert.False(t, slots[2].visible)

	m.remove(a)
	slots = m.slots()
	assert.Equal(t, left, slots[0].input)
	assert.False(t, slots[1].visible)
	assert.Contains(t, m.tooltip(), "1 binding(s)")
}

func TestSlotShowsFiringBinding(t *testing.T) {
	var m menuModel
	a := input.Key("A")
	m.sync(input.LogicalInput{}, false, []turbo.BindingInfo{{Input: a, IntervalMs: 30}})

	m.upsert(turbo.BindingInfo{Input: a, IntervalMs: 30, Running: true})
	assert.Equal(t, "A @ 30 ms, firing (click to remove)", m.slots()[0].title)

	m.upsert(turbo.BindingInfo{Input: a, IntervalMs: 30})
	assert.Equal(t, "A @ 30 ms (click to remove)", m.slots()[0].title)
}

func TestOverflow(t *testing.T) {
	var m menuModel
	names := input.KeyNames()
	for i := 0; i < maxSlots+3; i++ {
		m.upsert(turbo.BindingInfo{Input: input.Key(names[i]), IntervalMs: 10})
	}
	assert.Equal(t, 3, m.overflow())

	for _, v := range m.slots() {
		assert.True(t, v.visible)
	}
}

func TestRemoveSlotUsesCurrentBinding(t *testing.T) {
	var removed []input.LogicalInput
	tr := New(Actions{Remove: func(in input.LogicalInput) { removed = append(removed, in) }})

	// Listener updates before the menu exists only touch the model.
	tr.BindingAdded(turbo.BindingInfo{Input: input.Key("A"), IntervalMs: 10})
	tr.BindingAdded(turbo.BindingInfo{Input: input.Key("B"), IntervalMs: 10})
	tr.BindingRemoved(input.Key("A"))

	tr.removeSlot(0)
	tr.removeSlot(5)
	assert.Equal(t, []input.LogicalInput{input.Key("B")}, removed)
}
