package hotkey

import (
	"sync"
	"time"
)

// Action is what a key gesture asks the recorder to do.
type Action int

const (
	ActionStart Action = iota
	ActionStop
)

func (a Action) String() string {
	if a == ActionStart {
		return "start"
	}
	return "stop"
}

// DefaultLongPress separates a tap from a hold.
const DefaultLongPress = 350 * time.Millisecond

// Trigger turns presses of one key combination into start/stop actions.
// A press starts recording. Releasing after longPress stops it (hold to
// talk); a quicker release latches recording on until the next press is
// released.
type Trigger struct {
	actions chan Action
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	latched bool
}

func NewTrigger(hk Hotkey, longPress time.Duration) *Trigger {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	t := &Trigger{
		actions: make(chan Action, 2),
		done:    make(chan struct{}),
	}
	go t.run(hk, longPress)
	return t
}

func (t *Trigger) Actions() <-chan Action { return t.actions }

// Latched reports whether a tap left recording on.
func (t *Trigger) Latched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched
}

// Close stops the trigger goroutine. The Hotkey is not unregistered.
func (t *Trigger) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Trigger) run(hk Hotkey, longPress time.Duration) {
	for {
		if !t.wait(hk.Keydown()) || !t.send(ActionStart) {
			return
		}

		timer := time.NewTimer(longPress)
		held := false
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-timer.C:
			held = true
		case <-hk.Keyup():
			timer.Stop()
		}

		if held {
			if !t.wait(hk.Keyup()) || !t.send(ActionStop) {
				return
			}
			continue
		}

		t.setLatched(true)
		if !t.wait(hk.Keydown()) || !t.wait(hk.Keyup()) {
			return
		}
		t.setLatched(false)
		if !t.send(ActionStop) {
			return
		}
	}
}

func (t *Trigger) setLatched(v bool) {
	t.mu.Lock()
	t.latched = v
	t.mu.Unlock()
}

func (t *Trigger) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-t.done:
		return false
	}
}

func (t *Trigger) send(a Action) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.actions <- a:
		return true
	case <-t.done:
		return false
	}
}
