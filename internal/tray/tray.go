// Package tray provides the system tray display using getlantern/systray.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"turbofire/internal/input"
	"turbofire/internal/turbo"
)

// Actions are the user requests the tray forwards to the engine.
type Actions struct {
	Designate     func()
	Remove        func(in input.LogicalInput)
	RemoveAll     func()
	OpenDashboard func()
	Quit          func()
}

// Tray manages the system tray icon and menu. It implements turbo.Listener.
type Tray struct {
	actions Actions
	quitCh  chan struct{}

	mu    sync.Mutex
	model menuModel
	ready bool

	triggerItem   *systray.MenuItem
	designateItem *systray.MenuItem
	overflowItem  *systray.MenuItem
	removeAllItem *systray.MenuItem
	dashboardItem *systray.MenuItem
	quitItem      *systray.MenuItem
	slots         []*systray.MenuItem
}

// New creates a new system tray
func New(actions Actions) *Tray {
	return &Tray{
		actions: actions,
		quitCh:  make(chan struct{}),
	}
}

// Sync replaces the displayed state, typically right after start-up.
func (t *Tray) Sync(s turbo.Snapshot) {
	t.update(func(m *menuModel) { m.sync(s.Trigger, s.AwaitingDesignation, s.Bindings) })
}

func (t *Tray) DesignationPending() {
	t.update(func(m *menuModel) { m.awaiting = true })
}

func (t *Tray) TriggerChanged(in input.LogicalInput) {
	t.update(func(m *menuModel) { m.setTrigger(in) })
}

func (t *Tray) BindingAdded(b turbo.BindingInfo) {
	t.update(func(m *menuModel) { m.upsert(b) })
}

func (t *Tray) BindingRemoved(in input.LogicalInput) {
	t.update(func(m *menuModel) { m.remove(in) })
}

func (t *Tray) IntervalChanged(b turbo.BindingInfo) {
	t.update(func(m *menuModel) { m.upsert(b) })
}

func (t *Tray) RunningChanged(b turbo.BindingInfo) {
	t.update(func(m *menuModel) { m.upsert(b) })
}

func (t *Tray) update(fn func(m *menuModel)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.model)
	if t.ready {
		t.renderLocked()
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) onExit() {
	close(t.quitCh)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle("Turbo")
	systray.SetIcon(getIcon())

	t.mu.Lock()
	t.triggerItem = systray.AddMenuItem("", "Current trigger input")
	t.triggerItem.Disable()
	t.designateItem = systray.AddMenuItem("Set trigger...", "The next key or button pressed becomes the trigger")
	systray.AddSeparator()

	t.slots = make([]*systray.MenuItem, maxSlots)
	for i := range t.slots {
		t.slots[i] = systray.AddMenuItem("", "Remove this binding")
		t.slots[i].Hide()
	}
	t.overflowItem = systray.AddMenuItem("", "")
	t.overflowItem.Disable()
	t.overflowItem.Hide()

	systray.AddSeparator()
	t.removeAllItem = systray.AddMenuItem("Remove all bindings", "")
	if t.actions.OpenDashboard != nil {
		t.dashboardItem = systray.AddMenuItem("Open dashboard...", "Show bindings and settings in the browser")
	}
	t.quitItem = systray.AddMenuItem("Quit", "Exit turbofire")

	t.ready = true
	t.renderLocked()
	t.mu.Unlock()

	t.handleClicks(t.designateItem, t.actions.Designate)
	t.handleClicks(t.removeAllItem, t.actions.RemoveAll)
	if t.dashboardItem != nil {
		t.handleClicks(t.dashboardItem, t.actions.OpenDashboard)
	}
	t.handleClicks(t.quitItem, t.actions.Quit)
	for i, item := range t.slots {
		slot := i
		t.handleClicks(item, func() { t.removeSlot(slot) })
	}
}

// Handle clicks in goroutine
func (t *Tray) handleClicks(item *systray.MenuItem, callback func()) {
	if callback == nil {
		return
	}
	go func() {
		for {
			select {
			case <-item.ClickedCh:
				callback()
			case <-t.quitCh:
				return
			}
		}
	}()
}

func (t *Tray) removeSlot(slot int) {
	t.mu.Lock()
	views := t.model.slots()
	t.mu.Unlock()

	if slot < len(views) && views[slot].visible && t.actions.Remove != nil {
		t.actions.Remove(views[slot].input)
	}
}

func (t *Tray) renderLocked() {
	label := t.model.triggerLabel()
	t.triggerItem.SetTitle(label)
	systray.SetTooltip(t.model.tooltip())

	for i, view := range t.model.slots() {
		if !view.visible {
			t.slots[i].Hide()
			continue
		}
		t.slots[i].SetTitle(view.title)
		t.slots[i].Show()
	}

	if n := t.model.overflow(); n > 0 {
		t.overflowItem.SetTitle(fmt.Sprintf("... and %d more", n))
		t.overflowItem.Show()
	} else {
		t.overflowItem.Hide()
	}
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00, // Size
		0x10, 0x00, 0x00, 0x00, // Width
		0x20, 0x00, 0x00, 0x00, // Height (16 * 2 for icon)
		0x01, 0x00, // Planes
		0x20, 0x00, // BPP
		0x00, 0x00, 0x00, 0x00, // Compression
		0x00, 0x04, 0x00, 0x00, // Image Size
	})
	// Opaque orange 16x16 pixels, BGRA
	for i := 62; i+4 <= 62+1024; i += 4 {
		copy(icon[i:i+4], []byte{0x00, 0x8C, 0xFF, 0xFF})
	}
	return icon
}
