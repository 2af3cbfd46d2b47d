package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrCancelled is returned when the user aborts the device picker.
var ErrCancelled = errors.New("device selection cancelled")

type pickKey int

const (
	keyNone pickKey = iota
	keyUp
	keyDown
	keyEnter
	keyCancel
)

func readKey(buf []byte) pickKey {
	switch {
	case len(buf) == 1:
		switch buf[0] {
		case '\r', '\n':
			return keyEnter
		case 3, 'q':
			return keyCancel
		case 'j':
			return keyDown
		case 'k':
			return keyUp
		}
	case len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[':
		switch buf[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth: lower quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
}

// pickDevice runs the picker over in and out and returns the chosen index.
func pickDevice(devices []DeviceInfo, in io.Reader, out io.Writer) (int, error) {
	cursor := 0
	renderPicker(out, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		switch readKey(buf[:n]) {
		case keyEnter:
			fmt.Fprint(out, "\r\n")
			return cursor, nil
		case keyCancel:
			fmt.Fprint(out, "\r\n")
			return 0, ErrCancelled
		case keyUp:
			cursor = max(cursor-1, 0)
		case keyDown:
			cursor = min(cursor+1, len(devices)-1)
		case keyNone:
			continue
		}
		fmt.Fprintf(out, "\x1b[%dA", len(devices)+2)
		renderPicker(out, devices, cursor)
	}
}

// SelectDevice asks the user to choose a microphone on the terminal. A
// single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, ErrNoDevice
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	i, err := pickDevice(devices, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}
	return &devices[i], nil
}

// FindDevice returns the first device whose name contains name,
// ignoring case.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w matching %q", ErrNoDevice, name)
}
