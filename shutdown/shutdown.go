// Package shutdown routes termination signals to the running program.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// OnSignal calls fn once on the first termination signal until the returned
// stop function is called.
func OnSignal(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	Notify(ch)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ch:
			fn()
		case <-done:
		}
	}()
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
