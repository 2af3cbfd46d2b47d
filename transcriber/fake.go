package transcriber

import (
	"context"
	"sync"

	"jot/capture"
)

// Fake returns a canned result or error. Gate, when set, blocks Transcribe
// until it is closed so tests can hold a request in flight.
type Fake struct {
	Result Result
	Err    error
	Gate   chan struct{}

	mu    sync.Mutex
	calls []capture.Audio
}

func NewFake(text string, err error) *Fake {
	return &Fake{Result: Result{Text: text}, Err: err}
}

func (f *Fake) Transcribe(ctx context.Context, a capture.Audio) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return Result{}, f.Err
	}
	return f.Result, nil
}

// Calls returns the audio of every Transcribe call so far.
func (f *Fake) Calls() []capture.Audio {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capture.Audio(nil), f.calls...)
}
