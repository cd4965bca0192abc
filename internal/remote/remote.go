// Package remote defines the table client the lead store writes through and
// the change feed it listens to. Backends live in sub-packages.
package remote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Row is a record in its flat wire form: snake_case column name to value.
// Values are whatever the backend decodes (string, float64, int64, bool,
// []any, map[string]any, time.Time or nil).
type Row map[string]any

// ID returns the row's "id" column as a string, or "" when absent.
func (r Row) ID() string {
	if r == nil {
		return ""
	}
	switch v := r[ColumnID].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Well-known columns every table handled by the store carries.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
)

// Order is the sort applied to Select.
type Order struct {
	Column string
	Desc   bool
}

// Filter is an equality filter used by Update and Delete.
type Filter struct {
	Column string
	Value  any
}

// ByID returns a filter matching the row with the given id.
func ByID(id string) Filter {
	return Filter{Column: ColumnID, Value: id}
}

// EventType is the kind of a change-feed notification.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is a push notification about a committed write. New is set for
// inserts and updates, Old for updates and deletes when the backend knows it.
type ChangeEvent struct {
	Table string    `json:"table"`
	Type  EventType `json:"eventType"`
	New   Row       `json:"new,omitempty"`
	Old   Row       `json:"old,omitempty"`
}

// RecordID returns the id of the row the event is about.
func (e ChangeEvent) RecordID() string {
	if id := e.New.ID(); id != "" {
		return id
	}
	return e.Old.ID()
}

// Handler receives change events. Handlers are called from backend
// goroutines, one event at a time per subscription.
type Handler func(ChangeEvent)

// Subscription is a live change-feed registration.
type Subscription interface {
	Unsubscribe() error
}

// Table is a backend-as-a-service table client.
type Table interface {
	// Select returns every row of table in the given order.
	Select(ctx context.Context, table string, order Order) ([]Row, error)

	// Insert writes rows and returns their canonical stored form,
	// including server-assigned ids and defaults.
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)

	// Update applies patch to the rows matching filter and returns them
	// as stored after the write.
	Update(ctx context.Context, table string, filter Filter, patch Row) ([]Row, error)

	// Delete removes the rows matching filter.
	Delete(ctx context.Context, table string, filter Filter) error

	// Subscribe registers h for change events on table.
	Subscribe(ctx context.Context, table string, h Handler) (Subscription, error)
}

var (
	// ErrInvalidIdentifier is returned for table or column names that are
	// not plain snake_case identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnknownColumn is returned when a row names a column the table
	// does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier checks that name is safe to splice into a query.
func ValidIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func() error

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() error { return f() }
