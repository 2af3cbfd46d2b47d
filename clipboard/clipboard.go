// Package clipboard copies reviewed transcripts to the system clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var ErrEmpty = errors.New("nothing to copy")

// Writer is the clipboard sink used by Copy. Tests replace it.
var Writer = cb.WriteAll

func Read() (string, error) {
	if cb.Unsupported {
		return "", errors.New("clipboard unsupported on this system")
	}
	return cb.ReadAll()
}

// Copy puts text on the clipboard. Blank text is refused so a failed
// transcription never clobbers what the user had copied.
func Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	return Writer(text)
}
