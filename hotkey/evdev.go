package hotkey

import "encoding/binary"

// Linux input_event layout on 64-bit: 16 bytes of timeval, then
// type, code and value.
const inputEventSize = 24

const (
	evKey = 1

	keyLCtrl  = 29
	keyRCtrl  = 97
	keyLShift = 42
	keyRShift = 54
	keySpace  = 57
)

type inputEvent struct {
	typ   uint16
	code  uint16
	value int32
}

func parseEvents(buf []byte) []inputEvent {
	evs := make([]inputEvent, 0, len(buf)/inputEventSize)
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		evs = append(evs, inputEvent{
			typ:   binary.LittleEndian.Uint16(buf[i+16:]),
			code:  binary.LittleEndian.Uint16(buf[i+18:]),
			value: int32(binary.LittleEndian.Uint32(buf[i+20:])),
		})
	}
	return evs
}

type edge int

const (
	edgeNone edge = iota
	edgeDown
	edgeUp
)

// comboTracker follows Ctrl+Shift+Space across key events from one device.
// Autorepeat (value 2) keeps a key held.
type comboTracker struct {
	ctrl, shift, space bool
}

func (c *comboTracker) feed(ev inputEvent) edge {
	if ev.typ != evKey {
		return edgeNone
	}
	down, up := ev.value == 1, ev.value == 0
	held := func(cur bool) bool { return down || (cur && !up) }

	switch ev.code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = held(c.ctrl)
	case keyLShift, keyRShift:
		c.shift = held(c.shift)
	case keySpace:
		switch {
		case down && !c.space && c.ctrl && c.shift:
			c.space = true
			return edgeDown
		case up && c.space:
			c.space = false
			return edgeUp
		}
	}
	return edgeNone
}
