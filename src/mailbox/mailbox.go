// Package mailbox carries UI updates from background goroutines to the single
// presentation goroutine. Producers never touch the presentation surface; the
// consumer drains the queue on a fixed tick and renders what it finds.
package mailbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTick is the presentation drain period.
const DefaultTick = 100 * time.Millisecond

type Kind int

const (
	KindLog Kind = iota
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is a UI update: either a line for the log area or a new status text.
type Event struct {
	Kind    Kind
	Message string
}

func LogEvent(msg string) Event    { return Event{Kind: KindLog, Message: msg} }
func StatusEvent(msg string) Event { return Event{Kind: KindStatus, Message: msg} }

// Mailbox is an unbounded FIFO of events. Any number of goroutines may
// enqueue; exactly one goroutine may drain.
type Mailbox struct {
	mu      sync.Mutex
	pending []Event
}

func New() *Mailbox {
	return &Mailbox{}
}

// Enqueue appends ev. It never blocks on the consumer.
func (m *Mailbox) Enqueue(ev Event) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
}

// Log enqueues a formatted log line.
func (m *Mailbox) Log(format string, args ...any) {
	m.Enqueue(LogEvent(fmt.Sprintf(format, args...)))
}

// Status enqueues a status update.
func (m *Mailbox) Status(msg string) {
	m.Enqueue(StatusEvent(msg))
}

// DrainAll removes and returns every queued event in enqueue order. It
// returns nil when nothing is pending.
func (m *Mailbox) DrainAll() []Event {
	m.mu.Lock()
	out := m.pending
	m.pending = nil
	m.mu.Unlock()
	return out
}

// Pending reports the number of queued events.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Pump drains the mailbox every period and hands non-empty batches to render,
// on the calling goroutine. It does a final drain once ctx is done so events
// enqueued during shutdown are not lost.
func (m *Mailbox) Pump(ctx context.Context, period time.Duration, render func([]Event)) {
	if period <= 0 {
		period = DefaultTick
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if evs := m.DrainAll(); len(evs) > 0 {
				render(evs)
			}
			return
		case <-ticker.C:
			if evs := m.DrainAll(); len(evs) > 0 {
				render(evs)
			}
		}
	}
}
