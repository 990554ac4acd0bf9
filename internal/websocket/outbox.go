package websocket

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Outbox queues server events for one connection and implements
// proctor.Platform. A single Pump goroutine owns all writes.
type Outbox struct {
	log zerolog.Logger

	mu      sync.Mutex
	ch      chan interface{}
	closed  bool
	dropped int
}

func NewOutbox(size int, log zerolog.Logger) *Outbox {
	return &Outbox{log: log, ch: make(chan interface{}, size)}
}

func (o *Outbox) Notify(n proctor.Notice) { o.Send(n) }

func (o *Outbox) Command(c proctor.PlatformCommand) {
	o.Send(CommandEvent{Event: EventCommand, Name: c.Name, Target: c.Target})
}

// Send queues v without blocking. It reports false when the outbox is
// closed or full.
func (o *Outbox) Send(v interface{}) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- v:
		return true
	default:
		o.dropped++
		o.log.Warn().Int("dropped", o.dropped).Msg("Outbox full, dropping event")
		return false
	}
}

// Close stops accepting events; Pump returns after writing what is queued.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// Pump writes queued events until Close or a write error.
func (o *Outbox) Pump(conn *websocket.Conn) error {
	for v := range o.ch {
		if err := WriteTyped(conn, v); err != nil {
			o.Close()
			for range o.ch {
			}
			return err
		}
	}
	return nil
}
