package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/travel-crm/internal/remote"
)

const (
	realtimePath   = "/realtime/v1/websocket"
	protocolVsn    = "1.0.0"
	joinTimeout    = 10 * time.Second
	reconnectDelay = 2 * time.Second

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
)

// phxMessage is a Phoenix channel frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config joinConfig `json:"config"`
}

type joinConfig struct {
	PostgresChanges []changeFilter `json:"postgres_changes"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      remote.EventType `json:"type"`
		Table     string           `json:"table"`
		Record    remote.Row       `json:"record"`
		OldRecord remote.Row       `json:"old_record"`
	} `json:"data"`
}

// channel is one realtime subscription. Writes to the socket are
// serialized by wmu.
type channel struct {
	t     *Table
	table string
	topic string
	h     remote.Handler

	wmu  sync.Mutex
	conn *websocket.Conn
	ref  int
}

// Subscribe joins the table's realtime channel and calls h for every
// change. The socket is redialed after errors until Unsubscribe is called.
func (t *Table) Subscribe(ctx context.Context, table string, h remote.Handler) (remote.Subscription, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}

	ch := &channel{
		t:     t,
		table: table,
		topic: fmt.Sprintf("realtime:%s:%s", t.cfg.Schema, table),
		h:     h,
	}
	if err := ch.connect(ctx); err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.run(lctx)
	}()

	return remote.SubscriptionFunc(func() error {
		cancel()
		ch.close()
		<-done
		return nil
	}), nil
}

func (t *Table) socketURL() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing rest url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath

	q := u.Query()
	if t.cfg.APIKey != "" {
		q.Set("apikey", t.cfg.APIKey)
	}
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// connect dials the socket, joins the topic and waits for the join reply.
func (c *channel) connect(ctx context.Context) error {
	endpoint, err := c.t.socketURL()
	if err != nil {
		return err
	}

	conn, _, err := c.t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing realtime: %w", err)
	}

	c.wmu.Lock()
	c.conn = conn
	c.ref = 0
	c.wmu.Unlock()

	joinRef, err := c.send(eventJoin, joinPayload{Config: joinConfig{
		PostgresChanges: []changeFilter{{Event: "*", Schema: c.t.cfg.Schema, Table: c.table}},
	}})
	if err != nil {
		_ = conn.Close()
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("joining %s: %w", c.topic, err)
		}
		if msg.Event != eventReply || msg.Ref != joinRef {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			_ = conn.Close()
			return fmt.Errorf("decoding join reply: %w", err)
		}
		if reply.Status != "ok" {
			_ = conn.Close()
			return fmt.Errorf("joining %s: status %s: %s", c.topic, reply.Status, string(reply.Response))
		}
		return nil
	}
}

// send writes a frame on the channel topic and returns its ref.
func (c *channel) send(event string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", event, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return "", websocket.ErrCloseSent
	}
	c.ref++
	ref := strconv.Itoa(c.ref)

	topic := c.topic
	if event == eventHeartbeat {
		topic = "phoenix"
	}
	msg := phxMessage{Topic: topic, Event: event, Payload: body, Ref: ref}
	if err := c.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("writing %s: %w", event, err)
	}
	return ref, nil
}

func (c *channel) run(ctx context.Context) {
	for {
		c.read(ctx)
		if ctx.Err() != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			if err := c.connect(ctx); err != nil {
				c.t.log.Warn().Err(err).Str("topic", c.topic).Msg("realtime reconnect failed")
				continue
			}
			break
		}
	}
}

// read pumps frames until the socket fails, with a heartbeat running
// alongside.
func (c *channel) read(ctx context.Context) {
	c.wmu.Lock()
	conn := c.conn
	c.wmu.Unlock()
	if conn == nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go c.heartbeat(ctx, conn, stop)

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.t.log.Warn().Err(err).Str("topic", c.topic).Msg("realtime connection lost")
			}
			_ = conn.Close()
			return
		}
		if msg.Event != eventChanges || msg.Topic != c.topic {
			continue
		}

		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.t.log.Error().Err(err).Str("topic", c.topic).Msg("decoding realtime change")
			continue
		}
		c.deliver(remote.ChangeEvent{
			Table: c.table,
			Type:  p.Data.Type,
			New:   p.Data.Record,
			Old:   p.Data.OldRecord,
		})
	}
}

// heartbeat pings the socket until stop closes. Cancelling ctx closes conn
// so a blocked read returns.
func (c *channel) heartbeat(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if _, err := c.send(eventHeartbeat, struct{}{}); err != nil {
				return
			}
		}
	}
}

func (c *channel) deliver(ev remote.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.t.log.Error().Interface("panic", r).Str("table", ev.Table).
				Msg("change feed handler panicked")
		}
	}()
	c.h(ev)
}

// close leaves the topic and closes the socket, which ends read.
func (c *channel) close() {
	_, _ = c.send(eventLeave, struct{}{})

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.conn = nil
	}
}
