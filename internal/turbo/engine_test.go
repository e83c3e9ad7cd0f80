package turbo

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbofire/internal/input"
)

type fakeSource struct {
	mu      sync.Mutex
	held    map[input.LogicalInput]bool
	err     error
	panicky bool
}

func newFakeSource(held ...input.LogicalInput) *fakeSource {
	s := &fakeSource{held: make(map[input.LogicalInput]bool)}
	for _, in := range held {
		s.held[in] = true
	}
	return s
}

func (s *fakeSource) set(in input.LogicalInput, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[in] = down
}

func (s *fakeSource) IsPressed(in input.LogicalInput) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicky {
		panic("poll exploded")
	}
	if s.err != nil {
		return false, s.err
	}
	return s.held[in], nil
}

// Pressed mimics the platform order: keyboard keys before mouse buttons.
func (s *fakeSource) Pressed() ([]input.LogicalInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []input.LogicalInput
	for _, in := range input.All() {
		if s.held[in] {
			out = append(out, in)
		}
	}
	return out, nil
}

type injected struct {
	in   input.LogicalInput
	down bool
}

type fakeInjector struct {
	mu     sync.Mutex
	events []injected
	err    error
}

func (f *fakeInjector) Inject(in input.LogicalInput, pressed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, injected{in: in, down: pressed})
	return nil
}

func (f *fakeInjector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeInjector) snapshot() []injected {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

type manualTicker struct {
	interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// fire delivers one tick, failing the test if the run no longer listens.
func (m *manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	tk := &manualTicker{interval: d, ch: make(chan time.Time)}
	f.tickers = append(f.tickers, tk)
	return tk
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) last() *manualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

type harness struct {
	engine   *Engine
	source   *fakeSource
	injector *fakeInjector
	tickers  *tickerFactory
}

func newHarness(t *testing.T, held ...input.LogicalInput) *harness {
	h := &harness{
		source:   newFakeSource(held...),
		injector: &fakeInjector{},
		tickers:  &tickerFactory{},
	}
	h.engine = NewEngine(h.source, h.injector, Options{KeyHold: time.Microsecond, NewTicker: h.tickers.New})
	t.Cleanup(h.engine.Shutdown)
	return h
}

// bind creates a binding for in through the trigger combination.
func (h *harness) bind(t *testing.T, trigger, in input.LogicalInput) {
	t.Helper()
	h.engine.SetTrigger(trigger)
	h.source.set(trigger, true)
	h.source.set(in, true)
	h.engine.OnInputDown(trigger)
	h.source.set(trigger, false)
	_, ok := h.engine.Binding(in)
	require.True(t, ok, "binding for %s", in)
}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingListener) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recordingListener) DesignationPending() { r.add("pending") }
func (r *recordingListener) TriggerChanged(in input.LogicalInput) { r.add("trigger " + in.String()) }
func (r *recordingListener) BindingAdded(b BindingInfo) { r.add("added " + b.Input.String()) }
func (r *recordingListener) BindingRemoved(in input.LogicalInput) { r.add("removed " + in.String()) }
func (r *recordingListener) IntervalChanged(b BindingInfo) { r.add("interval " + b.Input.String()) }
func (r *recordingListener) RunningChanged(b BindingInfo) {
	if b.Running {
		r.add("running " + b.Input.String())
	} else {
		r.add("idle " + b.Input.String())
	}
}

func (r *recordingListener) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

var (
	keyA = input.Key("A")
	keyF = input.Key("F")
)

func TestDesignateAndToggle(t *testing.T) {
	h := newHarness(t)
	rec := &recordingListener{}
	h.engine.AddListener(rec)

	h.engine.RequestDesignation()
	assert.True(t, h.engine.AwaitingDesignation())

	h.engine.OnInputDown(keyF)
	trigger, ok := h.engine.Trigger()
	require.True(t, ok)
	assert.Equal(t, keyF, trigger)
	assert.False(t, h.engine.AwaitingDesignation())

	// F held with A: creates a binding for A at the default interval.
	h.source.set(keyF, true)
	h.source.set(keyA, true)
	h.engine.OnInputDown(keyF)

	b, ok := h.engine.Binding(keyA)
	require.True(t, ok)
	assert.Equal(t, DefaultIntervalMs, b.IntervalMs)
	assert.False(t, b.Running)

	// Same combination again removes it.
	h.engine.OnInputDown(keyF)
	_, ok = h.engine.Binding(keyA)
	assert.False(t, ok)

	assert.Equal(t, []string{
		"pending",
		"trigger keyboard_F",
		"added keyboard_A",
		"removed keyboard_A",
	}, rec.snapshot())
}

func TestDesignationAcceptsMouseButton(t *testing.T) {
	h := newHarness(t)
	h.engine.RequestDesignation()
	h.engine.OnInputDown(input.Button(input.MButton))

	trigger, ok := h.engine.Trigger()
	require.True(t, ok)
	assert.Equal(t, input.Button(input.MButton), trigger)
}

func TestTriggerAloneDoesNothing(t *testing.T) {
	h := newHarness(t, keyF)
	h.engine.SetTrigger(keyF)
	h.engine.OnInputDown(keyF)

	assert.Empty(t, h.engine.Bindings())
	assert.Zero(t, h.tickers.count())
}

func TestTriggerPicksKeyboardBeforeMouse(t *testing.T) {
	h := newHarness(t, keyF, input.Button(input.LButton), input.Key("Z"))
	h.engine.SetTrigger(keyF)
	h.engine.OnInputDown(keyF)

	bindings := h.engine.Bindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, input.Key("Z"), bindings[0].Input)
}

func TestUnboundInputIsIgnored(t *testing.T) {
	h := newHarness(t, keyA)
	h.engine.OnInputDown(keyA)

	assert.False(t, h.engine.IsRunning(keyA))
	assert.Zero(t, h.tickers.count())
}

func TestTimerFiresWhileHeldAndStopsOnRelease(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	h.engine.OnInputDown(keyA)
	require.True(t, h.engine.IsRunning(keyA))
	tk := h.tickers.last()
	assert.Equal(t, 10*time.Millisecond, tk.interval)

	tk.fire(t)
	require.Eventually(t, func() bool { return h.injector.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []injected{{keyA, true}, {keyA, false}}, h.injector.snapshot())

	h.source.set(keyA, false)
	tk.fire(t)
	require.Eventually(t, func() bool { return !h.engine.IsRunning(keyA) }, time.Second, time.Millisecond)
	assert.True(t, tk.isStopped())
	assert.Equal(t, 2, h.injector.count())
}

func TestMouseBindingInjectsDownThenUp(t *testing.T) {
	left := input.Button(input.LButton)
	h := newHarness(t)
	h.bind(t, keyF, left)

	require.True(t, h.engine.Start(left))
	h.tickers.last().fire(t)

	require.Eventually(t, func() bool { return h.injector.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []injected{{left, true}, {left, false}}, h.injector.snapshot())
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.engine.Start(keyA) {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, h.tickers.count())
	assert.Equal(t, 1, h.engine.RunningCount())

	// Repeated key-down events while held do not stack timers either.
	h.engine.OnInputDown(keyA)
	assert.Equal(t, 1, h.tickers.count())
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	assert.False(t, h.engine.Stop(keyA))
	require.True(t, h.engine.Start(keyA))
	assert.True(t, h.engine.Stop(keyA))
	assert.False(t, h.engine.Stop(keyA))
	assert.True(t, h.tickers.last().isStopped())
}

func TestEditIntervalAppliesOnNextStart(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	require.True(t, h.engine.Start(keyA))
	first := h.tickers.last()

	info, err := h.engine.EditInterval(keyA, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, info.IntervalMs)
	assert.True(t, info.Running)

	// The running timer keeps its period.
	assert.Equal(t, 1, h.tickers.count())
	assert.Equal(t, 10*time.Millisecond, first.interval)
	assert.False(t, first.isStopped())

	h.engine.Stop(keyA)
	require.True(t, h.engine.Start(keyA))
	assert.Equal(t, 40*time.Millisecond, h.tickers.last().interval)
}

func TestEditIntervalClamps(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	info, err := h.engine.EditInterval(keyA, 0)
	require.NoError(t, err)
	assert.Equal(t, MinIntervalMs, info.IntervalMs)

	info, err = h.engine.EditInterval(keyA, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxIntervalMs, info.IntervalMs)

	_, err = h.engine.EditInterval(input.Key("B"), 20)
	assert.ErrorIs(t, err, ErrNoBinding)
}

func TestRemoveBindingCancelsTimer(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	require.True(t, h.engine.Start(keyA))
	tk := h.tickers.last()

	require.NoError(t, h.engine.RemoveBinding(keyA))
	assert.False(t, h.engine.IsRunning(keyA))
	assert.True(t, tk.isStopped())
	assert.ErrorIs(t, h.engine.RemoveBinding(keyA), ErrNoBinding)
}

func TestToggleOffCancelsTimer(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	require.True(t, h.engine.Start(keyA))

	h.source.set(keyF, true)
	h.engine.OnInputDown(keyF)

	_, ok := h.engine.Binding(keyA)
	assert.False(t, ok)
	assert.False(t, h.engine.IsRunning(keyA))
}

func TestRemoveAll(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	h.source.set(keyA, false)
	h.bind(t, keyF, input.Key("B"))
	require.True(t, h.engine.Start(keyA))

	rec := &recordingListener{}
	h.engine.AddListener(rec)
	h.engine.RemoveAll()

	assert.Empty(t, h.engine.Bindings())
	assert.Zero(t, h.engine.RunningCount())
	assert.Equal(t, []string{"removed keyboard_A", "removed keyboard_B"}, rec.snapshot())
}

func TestInjectorErrorStopsTimer(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	h.injector.err = errors.New("access denied")

	require.True(t, h.engine.Start(keyA))
	tk := h.tickers.last()
	tk.fire(t)

	require.Eventually(t, func() bool { return !h.engine.IsRunning(keyA) }, time.Second, time.Millisecond)
	assert.True(t, tk.isStopped())

	// The binding survives a failed run.
	_, ok := h.engine.Binding(keyA)
	assert.True(t, ok)
}

func TestPanicInPollStopsTimer(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	require.True(t, h.engine.Start(keyA))
	h.source.mu.Lock()
	h.source.panicky = true
	h.source.mu.Unlock()
	h.tickers.last().fire(t)

	require.Eventually(t, func() bool { return !h.engine.IsRunning(keyA) }, time.Second, time.Millisecond)
	assert.Zero(t, h.injector.count())
}

func TestIndependentTimers(t *testing.T) {
	keyB := input.Key("B")
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	h.source.set(keyA, false)
	h.bind(t, keyF, keyB)

	h.source.set(keyA, true)
	h.source.set(keyB, true)
	h.engine.OnInputDown(keyA)
	h.engine.OnInputDown(keyB)
	assert.Equal(t, 2, h.engine.RunningCount())

	// Releasing A stops only A.
	h.source.set(keyA, false)
	h.tickers.tickers[0].fire(t)
	require.Eventually(t, func() bool { return !h.engine.IsRunning(keyA) }, time.Second, time.Millisecond)
	assert.True(t, h.engine.IsRunning(keyB))
}

func TestRealTickerFiresRepeatedly(t *testing.T) {
	source := newFakeSource()
	injector := &fakeInjector{}
	engine := NewEngine(source, injector, Options{DefaultIntervalMs: 2, KeyHold: time.Microsecond})
	t.Cleanup(engine.Shutdown)

	engine.SetTrigger(keyF)
	source.set(keyF, true)
	source.set(keyA, true)
	engine.OnInputDown(keyF)
	source.set(keyF, false)

	engine.OnInputDown(keyA)
	require.Eventually(t, func() bool { return injector.count() >= 6 }, 2*time.Second, time.Millisecond)

	source.set(keyA, false)
	require.Eventually(t, func() bool { return !engine.IsRunning(keyA) }, 2*time.Second, time.Millisecond)
}

func TestClampInterval(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{10, 10},
		{150, 150},
		{151, 150},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClampInterval(c.in), "ClampInterval(%d)", c.in)
	}
}

func TestRunningChangesAreReported(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	rec := &recordingListener{}
	h.engine.AddListener(rec)

	h.engine.OnInputDown(keyA)
	// A second press while firing reports nothing new.
	h.engine.OnInputDown(keyA)

	h.source.set(keyA, false)
	h.tickers.last().fire(t)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"running keyboard_A", "idle keyboard_A"}, rec.snapshot())

	require.True(t, h.engine.Start(keyA))
	require.True(t, h.engine.Stop(keyA))
	assert.False(t, h.engine.Stop(keyA))
	assert.Equal(t, []string{
		"running keyboard_A",
		"idle keyboard_A",
		"running keyboard_A",
		"idle keyboard_A",
	}, rec.snapshot())

	// Removal reports the removal only.
	require.True(t, h.engine.Start(keyA))
	require.NoError(t, h.engine.RemoveBinding(keyA))
	assert.Equal(t, "removed keyboard_A", rec.snapshot()[len(rec.snapshot())-1])
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)
	require.True(t, h.engine.Start(keyA))
	h.engine.RequestDesignation()

	snap := h.engine.Snapshot()
	assert.Equal(t, keyF, snap.Trigger)
	assert.True(t, snap.AwaitingDesignation)
	assert.Equal(t, []BindingInfo{{Input: keyA, IntervalMs: DefaultIntervalMs, Running: true}}, snap.Bindings)
}

// orderListener records BindingAdded calls next to WithSnapshot results so
// their relative order can be checked.
type orderListener struct {
	BaseListener
	mu  sync.Mutex
	log []string
}

func (o *orderListener) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log = append(o.log, s)
}

func (o *orderListener) BindingAdded(b BindingInfo) { o.add("added " + b.Input.String()) }

func TestWithSnapshotIsOrderedWithNotifications(t *testing.T) {
	h := newHarness(t)
	h.engine.SetTrigger(keyF)
	ol := &orderListener{}
	h.engine.AddListener(ol)

	keys := []input.LogicalInput{input.Key("A"), input.Key("B"), input.Key("C"), input.Key("D")}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, k := range keys {
			h.source.set(keyF, true)
			h.source.set(k, true)
			h.engine.OnInputDown(keyF)
			h.source.set(k, false)
		}
	}()

	for i := 0; i < 20; i++ {
		h.engine.WithSnapshot(func(s Snapshot) {
			ol.add(fmt.Sprintf("snapshot %d", len(s.Bindings)))
		})
	}
	wg.Wait()

	// Every snapshot counts exactly the bindings announced before it.
	ol.mu.Lock()
	defer ol.mu.Unlock()
	added := 0
	for _, entry := range ol.log {
		if strings.HasPrefix(entry, "added ") {
			added++
			continue
		}
		assert.Equal(t, fmt.Sprintf("snapshot %d", added), entry)
	}
	assert.Equal(t, len(keys), added)
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t)
	h.bind(t, keyF, keyA)

	h.engine.ApplySettings(999, 2*time.Millisecond, true)
	assert.Equal(t, MaxIntervalMs, h.engine.DefaultInterval())

	// Existing bindings keep their interval; new ones get the new default.
	b, _ := h.engine.Binding(keyA)
	assert.Equal(t, DefaultIntervalMs, b.IntervalMs)

	h.source.set(keyA, false)
	b2 := input.Key("B")
	h.bind(t, keyF, b2)
	got, _ := h.engine.Binding(b2)
	assert.Equal(t, MaxIntervalMs, got.IntervalMs)
	assert.Equal(t, int64(2*time.Millisecond), h.engine.keyHold.Load())
	assert.True(t, h.engine.verbose.Load())

	h.engine.ApplySettings(20, -time.Second, false)
	assert.Zero(t, h.engine.keyHold.Load())
	assert.False(t, h.engine.verbose.Load())
}

func TestAttachMissesNothing(t *testing.T) {
	h := newHarness(t)
	h.engine.SetTrigger(keyF)
	ol := &orderListener{}

	keys := []input.LogicalInput{input.Key("A"), input.Key("B"), input.Key("C"), input.Key("D")}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, k := range keys {
			h.source.set(keyF, true)
			h.source.set(k, true)
			h.engine.OnInputDown(keyF)
			h.source.set(k, false)
		}
	}()
	h.engine.Attach(ol, func(s Snapshot) {
		ol.add(fmt.Sprintf("snapshot %d", len(s.Bindings)))
	})
	wg.Wait()

	ol.mu.Lock()
	defer ol.mu.Unlock()
	require.NotEmpty(t, ol.log)
	var synced int
	_, err := fmt.Sscanf(ol.log[0], "snapshot %d", &synced)
	require.NoError(t, err)
	assert.Equal(t, len(keys), synced+len(ol.log)-1)
}
