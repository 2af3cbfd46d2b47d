// Package hotkey delivers the global start/stop key (Ctrl+Shift+Space).
package hotkey

import "errors"

// ErrNoKeyboard means no keyboard could be opened for the global key.
var ErrNoKeyboard = errors.New("no usable keyboard device")

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is the key combination shown to the user.
const Combo = "Ctrl+Shift+Space"
