package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/remote/sqlite"
)

// NewTestTable creates an in-memory SQLite table with all migrations
// applied. It automatically closes the table when the test completes.
func NewTestTable(t *testing.T) *sqlite.Table {
	t.Helper()

	tbl, err := sqlite.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("creating test table: %v", err)
	}

	t.Cleanup(func() {
		if err := tbl.Close(); err != nil {
			t.Errorf("closing test table: %v", err)
		}
	})

	return tbl
}

// FakeTable is a scriptable remote.Table kept in memory. Writes produce
// change events that are either delivered inside the write call
// (EmitDuringWrite) or queued until Flush, which lets tests order feed
// delivery against the writer's read-back.
type FakeTable struct {
	mu       sync.Mutex
	rows     []remote.Row // insertion order
	handlers map[int]remote.Handler
	nextSub  int
	nextID   int
	pending  []remote.ChangeEvent
	base     time.Time

	// EmitDuringWrite delivers each change event to subscribers before
	// the write call returns.
	EmitDuringWrite bool

	// Errors returned by the next calls. They stay set until cleared.
	SelectErr    error
	InsertErr    error
	UpdateErr    error
	DeleteErr    error
	SubscribeErr error

	// Calls counts invocations per method name.
	Calls map[string]int
}

// NewFakeTable returns an empty fake.
func NewFakeTable() *FakeTable {
	return &FakeTable{
		handlers: make(map[int]remote.Handler),
		base:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Calls:    make(map[string]int),
	}
}

// SetError changes one of the scripted errors under the fake's lock.
func (f *FakeTable) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "Select":
		f.SelectErr = err
	case "Insert":
		f.InsertErr = err
	case "Update":
		f.UpdateErr = err
	case "Delete":
		f.DeleteErr = err
	case "Subscribe":
		f.SubscribeErr = err
	}
}

// Seed stores rows without producing change events.
func (f *FakeTable) Seed(rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows = append(f.rows, f.stamp(r.Clone()))
	}
}

// Rows returns copies of the stored rows in insertion order.
func (f *FakeTable) Rows() []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Row, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Clone())
	}
	return out
}

// Subscribers returns the number of live subscriptions.
func (f *FakeTable) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Pending returns the queued, undelivered events.
func (f *FakeTable) Pending() []remote.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.ChangeEvent(nil), f.pending...)
}

// Flush delivers queued events to every subscriber, in order.
func (f *FakeTable) Flush() {
	f.mu.Lock()
	events := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, ev := range events {
		f.Emit(ev)
	}
}

// Emit delivers ev to every subscriber synchronously.
func (f *FakeTable) Emit(ev remote.ChangeEvent) {
	f.mu.Lock()
	handlers := make([]remote.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Select returns the stored rows. A descending order returns newest
// inserts first; other orders return insertion order.
func (f *FakeTable) Select(_ context.Context, _ string, order remote.Order) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Select"]++
	if f.SelectErr != nil {
		return nil, f.SelectErr
	}

	out := make([]remote.Row, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Clone())
	}
	if order.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Insert stores rows, assigning ids and creation times when absent.
func (f *FakeTable) Insert(_ context.Context, table string, rows []remote.Row) ([]remote.Row, error) {
	f.mu.Lock()
	f.Calls["Insert"]++
	if f.InsertErr != nil {
		err := f.InsertErr
		f.mu.Unlock()
		return nil, err
	}

	out := make([]remote.Row, 0, len(rows))
	events := make([]remote.ChangeEvent, 0, len(rows))
	for _, r := range rows {
		stored := f.stamp(r.Clone())
		f.rows = append(f.rows, stored)
		out = append(out, stored.Clone())
		events = append(events, remote.ChangeEvent{
			Table: table, Type: remote.EventInsert, New: stored.Clone(),
		})
	}
	f.mu.Unlock()

	f.publish(events)
	return out, nil
}

// Update merges patch into the rows matching filter.
func (f *FakeTable) Update(
	_ context.Context,
	table string,
	filter remote.Filter,
	patch remote.Row,
) ([]remote.Row, error) {
	f.mu.Lock()
	f.Calls["Update"]++
	if f.UpdateErr != nil {
		err := f.UpdateErr
		f.mu.Unlock()
		return nil, err
	}

	var out []remote.Row
	var events []remote.ChangeEvent
	for i, r := range f.rows {
		if !matches(r, filter) {
			continue
		}
		old := r.Clone()
		for k, v := range patch {
			r[k] = v
		}
		f.rows[i] = r
		out = append(out, r.Clone())
		events = append(events, remote.ChangeEvent{
			Table: table, Type: remote.EventUpdate, New: r.Clone(), Old: old,
		})
	}
	f.mu.Unlock()

	f.publish(events)
	return out, nil
}

// Delete removes the rows matching filter.
func (f *FakeTable) Delete(_ context.Context, table string, filter remote.Filter) error {
	f.mu.Lock()
	f.Calls["Delete"]++
	if f.DeleteErr != nil {
		err := f.DeleteErr
		f.mu.Unlock()
		return err
	}

	kept := f.rows[:0]
	var events []remote.ChangeEvent
	for _, r := range f.rows {
		if matches(r, filter) {
			events = append(events, remote.ChangeEvent{
				Table: table, Type: remote.EventDelete, Old: r.Clone(),
			})
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	f.mu.Unlock()

	f.publish(events)
	return nil
}

// Subscribe registers h.
func (f *FakeTable) Subscribe(_ context.Context, _ string, h remote.Handler) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Subscribe"]++
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	id := f.nextSub
	f.nextSub++
	f.handlers[id] = h

	return remote.SubscriptionFunc(func() error {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
		return nil
	}), nil
}

func (f *FakeTable) publish(events []remote.ChangeEvent) {
	f.mu.Lock()
	immediate := f.EmitDuringWrite
	if !immediate {
		f.pending = append(f.pending, events...)
	}
	f.mu.Unlock()

	if immediate {
		for _, ev := range events {
			f.Emit(ev)
		}
	}
}

// stamp fills the server-assigned columns. Callers hold f.mu.
func (f *FakeTable) stamp(r remote.Row) remote.Row {
	f.nextID++
	if r.ID() == "" {
		r[remote.ColumnID] = fmt.Sprintf("lead-%d", f.nextID)
	}
	if _, ok := r[remote.ColumnCreatedAt]; !ok {
		r[remote.ColumnCreatedAt] = f.base.Add(time.Duration(f.nextID) * time.Minute)
	}
	return r
}

func matches(r remote.Row, filter remote.Filter) bool {
	return fmt.Sprint(r[filter.Column]) == fmt.Sprint(filter.Value)
}
