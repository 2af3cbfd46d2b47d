//go:build linux

package hotkey

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	devInput   = "/dev/input"
	sysInput   = "/sys/class/input"
	groupHint  = "run: sudo usermod -aG input $USER, then log in again"
	minKeyCaps = 10
)

// evdevHotkey reads key events straight from every keyboard under
// /dev/input, so it works under Wayland as well as X11.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}

	mu    sync.Mutex
	files []*os.File
	once  sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoKeyboard, err)
	}
	if len(keyboards) == 0 {
		return fmt.Errorf("%w under %s (%s)", ErrNoKeyboard, devInput, groupHint)
	}

	files := openAll(keyboards)
	if len(files) == 0 {
		return fmt.Errorf("%w: cannot open any of %d devices (%s)", ErrNoKeyboard, len(keyboards), groupHint)
	}

	h.mu.Lock()
	h.files = files
	h.mu.Unlock()
	for _, f := range files {
		go h.readEvents(f)
	}
	return nil
}

// readEvents returns when f is closed by Unregister.
func (h *evdevHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var combo comboTracker
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for _, ev := range parseEvents(buf[:n]) {
			switch combo.feed(ev) {
			case edgeDown:
				notify(h.keydown)
			case edgeUp:
				notify(h.keyup)
			}
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		h.mu.Lock()
		for _, f := range h.files {
			f.Close()
		}
		h.files = nil
		h.mu.Unlock()
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func openAll(paths []string) []*os.File {
	var files []*os.File
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			files = append(files, f)
		}
	}
	return files
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir(devInput)
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join(devInput, e.Name()))
		}
	}
	return keyboards, nil
}

// isKeyboard checks the key capability bitmap. Mice and power buttons
// advertise only a few keys.
func isKeyboard(event string) bool {
	data, err := os.ReadFile(filepath.Join(sysInput, event, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > minKeyCaps
}

func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan %s: %w", devInput, err)
	}
	if len(keyboards) == 0 {
		return "", errors.New("no keyboard devices found (" + groupHint + ")")
	}
	files := openAll(keyboards)
	if len(files) == 0 {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (%s)", len(keyboards), groupHint)
	}
	for _, f := range files {
		f.Close()
	}
	return fmt.Sprintf("%s via evdev (%d of %d keyboard(s) readable)", Combo, len(files), len(keyboards)), nil
}
