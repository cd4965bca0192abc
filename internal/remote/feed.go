package remote

import (
	"sync"

	"github.com/rs/zerolog"
)

// hubBuffer is the per-subscriber queue length. A subscriber that falls
// this far behind blocks publishers until it catches up.
const hubBuffer = 256

// Hub fans change events out to in-process subscribers. Each subscriber
// gets its own goroutine, so events for one subscriber are delivered in
// publish order and a slow subscriber never runs on the publisher's stack.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*hubSub
	nextID int
	log    zerolog.Logger
}

type hubSub struct {
	table string
	ch    chan ChangeEvent
	done  chan struct{}
	once  sync.Once
}

func (s *hubSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[int]*hubSub),
		log:  log,
	}
}

// Subscribe registers h for events on table.
func (h *Hub) Subscribe(table string, handler Handler) Subscription {
	sub := &hubSub{
		table: table,
		ch:    make(chan ChangeEvent, hubBuffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go h.dispatch(sub, handler)

	return SubscriptionFunc(func() error {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
		return nil
	})
}

// Publish delivers ev to every subscriber of ev.Table.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.Lock()
	targets := make([]*hubSub, 0, len(h.subs))
	for _, s := range h.subs {
		if s.table == ev.Table {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[int]*hubSub)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (h *Hub) dispatch(sub *hubSub, handler Handler) {
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.ch:
			h.deliver(handler, ev)
		}
	}
}

// deliver runs one handler call, keeping a panicking handler from taking
// the dispatch goroutine down.
func (h *Hub) deliver(handler Handler, ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("table", ev.Table).
				Str("event", string(ev.Type)).
				Msg("change feed handler panicked")
		}
	}()
	handler(ev)
}
