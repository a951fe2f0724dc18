package monitor

import (
	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// message is anything the session loop processes.
type message interface {
	isMessage()
}

type pushDelivered struct {
	event monitor.Event
}

type pushDiscarded struct {
	err error
}

type transportFailed struct {
	err error
}

type deadlineElapsed struct{}

type pollTick struct{}

type refreshRequested struct{}

type historyFetched struct {
	origin string
	events []monitor.Event
	err    error
}

type resetView struct {
	done chan struct{}
}

func (pushDelivered) isMessage()    {}
func (pushDiscarded) isMessage()    {}
func (transportFailed) isMessage()  {}
func (deadlineElapsed) isMessage()  {}
func (pollTick) isMessage()         {}
func (refreshRequested) isMessage() {}
func (historyFetched) isMessage()   {}
func (resetView) isMessage()        {}
