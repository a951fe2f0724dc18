package monitor

import (
	"sync"
	"time"
)

// Timer is a pending one-shot or repeating callback.
type Timer interface {
	// Stop cancels the timer. It reports whether this call stopped it.
	Stop() bool
}

// Scheduler creates the session's timers. Tests substitute a manual one.
type Scheduler interface {
	// AfterFunc calls f once after d.
	AfterFunc(d time.Duration, f func()) Timer

	// Every calls f every d until the returned Timer is stopped.
	Every(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (wallClock) Every(d time.Duration, f func()) Timer {
	t := &interval{stop: make(chan struct{})}
	go t.run(d, f)
	return t
}

type interval struct {
	stop chan struct{}
	once sync.Once
}

func (t *interval) run(d time.Duration, f func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			f()
		}
	}
}

func (t *interval) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.stop)
		stopped = true
	})
	return stopped
}
