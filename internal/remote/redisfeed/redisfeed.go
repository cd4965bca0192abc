// Package redisfeed relays change events through a Redis channel so that
// every process writing to the same table sees every other process's
// writes. It wraps any remote.Table.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/remote"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "travelcrm:changes"

// Relay is a remote.Table that forwards reads and writes to an inner table
// and publishes an event on Redis after each successful write. Its change
// feed is the Redis channel; the inner table's own feed is not used.
type Relay struct {
	inner   remote.Table
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// Dial parses a redis:// URL, pings the server and returns a Relay.
func Dial(ctx context.Context, redisURL, channel string, inner remote.Table, log zerolog.Logger) (*Relay, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return New(client, channel, inner, log), nil
}

// New wraps inner with an existing client.
func New(client *redis.Client, channel string, inner remote.Table, log zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		inner:   inner,
		client:  client,
		channel: channel,
		log:     log,
	}
}

// Close closes the Redis client. The inner table is left open.
func (r *Relay) Close() error {
	return r.client.Close()
}

// Select reads from the inner table.
func (r *Relay) Select(ctx context.Context, table string, order remote.Order) ([]remote.Row, error) {
	return r.inner.Select(ctx, table, order)
}

// Insert writes through and publishes one INSERT per stored row.
func (r *Relay) Insert(ctx context.Context, table string, rows []remote.Row) ([]remote.Row, error) {
	stored, err := r.inner.Insert(ctx, table, rows)
	if err != nil {
		return nil, err
	}
	for _, row := range stored {
		r.publish(ctx, remote.ChangeEvent{Table: table, Type: remote.EventInsert, New: row})
	}
	return stored, nil
}

// Update writes through and publishes one UPDATE per changed row.
func (r *Relay) Update(
	ctx context.Context,
	table string,
	filter remote.Filter,
	patch remote.Row,
) ([]remote.Row, error) {
	stored, err := r.inner.Update(ctx, table, filter, patch)
	if err != nil {
		return nil, err
	}
	for _, row := range stored {
		r.publish(ctx, remote.ChangeEvent{Table: table, Type: remote.EventUpdate, New: row})
	}
	return stored, nil
}

// Delete writes through and publishes a DELETE carrying the filter as the
// old row.
func (r *Relay) Delete(ctx context.Context, table string, filter remote.Filter) error {
	if err := r.inner.Delete(ctx, table, filter); err != nil {
		return err
	}
	r.publish(ctx, remote.ChangeEvent{
		Table: table,
		Type:  remote.EventDelete,
		Old:   remote.Row{filter.Column: filter.Value},
	})
	return nil
}

// publish never fails the write it follows; the row is already committed.
func (r *Relay) publish(ctx context.Context, ev remote.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Error().Err(err).Str("table", ev.Table).Msg("encoding change event")
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn().Err(err).
			Str("channel", r.channel).
			Str("event", string(ev.Type)).
			Str("lead_id", ev.RecordID()).
			Msg("publishing change event")
	}
}

// Subscribe listens on the Redis channel and calls h for events about
// table.
func (r *Relay) Subscribe(ctx context.Context, table string, h remote.Handler) (remote.Subscription, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}

	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			ev, err := decode(msg.Payload)
			if err != nil {
				r.log.Error().Err(err).Str("channel", r.channel).Msg("decoding change event")
				continue
			}
			if ev.Table != table {
				continue
			}
			r.deliver(h, ev)
		}
	}()

	return remote.SubscriptionFunc(func() error {
		err := ps.Close()
		<-done
		return err
	}), nil
}

func (r *Relay) deliver(h remote.Handler, ev remote.ChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("table", ev.Table).
				Msg("change feed handler panicked")
		}
	}()
	h(ev)
}

func decode(payload string) (remote.ChangeEvent, error) {
	var ev remote.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return remote.ChangeEvent{}, err
	}
	switch ev.Type {
	case remote.EventInsert, remote.EventUpdate, remote.EventDelete:
		return ev, nil
	default:
		return remote.ChangeEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
