package hotkey

import (
	"encoding/binary"
	"testing"
)

func encodeEvents(evs ...inputEvent) []byte {
	buf := make([]byte, len(evs)*inputEventSize)
	for i, ev := range evs {
		off := i * inputEventSize
		binary.LittleEndian.PutUint16(buf[off+16:], ev.typ)
		binary.LittleEndian.PutUint16(buf[off+18:], ev.code)
		binary.LittleEndian.PutUint32(buf[off+20:], uint32(ev.value))
	}
	return buf
}

func key(code uint16, value int32) inputEvent {
	return inputEvent{typ: evKey, code: code, value: value}
}

func TestParseEvents(t *testing.T) {
	in := []inputEvent{key(keySpace, 1), {typ: 0, code: 0, value: 0}, key(keyLCtrl, 0)}
	buf := append(encodeEvents(in...), 0, 1, 2) // trailing partial event
	got := parseEvents(buf)
	if len(got) != len(in) {
		t.Fatalf("parsed %d events, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], in[i])
		}
	}
}

func TestComboTracker(t *testing.T) {
	var c comboTracker
	feed := func(evs ...inputEvent) []edge {
		var out []edge
		for _, ev := range parseEvents(encodeEvents(evs...)) {
			if e := c.feed(ev); e != edgeNone {
				out = append(out, e)
			}
		}
		return out
	}

	if got := feed(key(keySpace, 1), key(keySpace, 0)); len(got) != 0 {
		t.Fatalf("bare space produced %v", got)
	}
	if got := feed(key(keyLCtrl, 1), key(keySpace, 1), key(keySpace, 0)); len(got) != 0 {
		t.Fatalf("ctrl+space produced %v", got)
	}

	got := feed(key(keyRShift, 1), key(keySpace, 1), key(keySpace, 2), key(keySpace, 2))
	if len(got) != 1 || got[0] != edgeDown {
		t.Fatalf("combo press = %v, want [down]", got)
	}

	// Releasing a modifier first still ends the hold on space release.
	got = feed(key(keyLCtrl, 0), key(keySpace, 0))
	if len(got) != 1 || got[0] != edgeUp {
		t.Fatalf("release = %v, want [up]", got)
	}
	if got := feed(key(keySpace, 1)); len(got) != 0 {
		t.Fatalf("space without ctrl produced %v", got)
	}
}
