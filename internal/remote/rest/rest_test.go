package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/remote/remotetest"
)

const testKey = "anon-key"

// fakeAPI is an in-memory PostgREST table with a realtime socket that
// broadcasts postgres_changes frames to joined clients.
type fakeAPI struct {
	mu     sync.Mutex
	rows   []remote.Row
	nextID int
	hits   []string

	wsMu    sync.Mutex
	clients map[*websocket.Conn]string
}

var knownColumns = map[string]bool{
	"id": true, "name": true, "status": true, "tags": true,
	"created_at": true, "phone": true, "email": true,
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{clients: make(map[*websocket.Conn]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/leads", api.serveTable)
	mux.HandleFunc(realtimePath, api.serveSocket)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) serveTable(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != testKey || r.Header.Get("Authorization") != "Bearer "+testKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api key"})
		return
	}

	a.mu.Lock()
	a.hits = append(a.hits, r.Method+" "+r.URL.RawQuery)
	a.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.selectRows(r.URL.Query().Get("order")))

	case http.MethodPost:
		var rows []remote.Row
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		if col := unknownColumn(rows...); col != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"code": "PGRST204", "message": fmt.Sprintf("Could not find the '%s' column", col),
			})
			return
		}
		stored := a.insert(rows)
		writeJSON(w, http.StatusCreated, stored)

	case http.MethodPatch:
		var patch remote.Row
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, a.update(idFilter(r), patch))

	case http.MethodDelete:
		a.remove(idFilter(r))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *fakeAPI) selectRows(order string) []remote.Row {
	a.mu.Lock()
	out := make([]remote.Row, len(a.rows))
	copy(out, a.rows)
	a.mu.Unlock()

	if col, dir, ok := strings.Cut(order, "."); ok {
		sort.SliceStable(out, func(i, j int) bool {
			x, y := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if dir == "desc" {
				return x > y
			}
			return x < y
		})
	}
	return out
}

func (a *fakeAPI) insert(rows []remote.Row) []remote.Row {
	a.mu.Lock()
	stored := make([]remote.Row, 0, len(rows))
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			a.nextID++
			r["id"] = fmt.Sprintf("rest-%d", a.nextID)
		}
		if _, ok := r["created_at"]; !ok {
			r["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		}
		if _, ok := r["status"]; !ok {
			r["status"] = "New"
		}
		a.rows = append(a.rows, r)
		stored = append(stored, r)
	}
	a.mu.Unlock()

	for _, r := range stored {
		a.broadcast(remote.EventInsert, r, nil)
	}
	return stored
}

func (a *fakeAPI) update(id string, patch remote.Row) []remote.Row {
	a.mu.Lock()
	var old, updated remote.Row
	for i, r := range a.rows {
		if r.ID() != id {
			continue
		}
		old = r.Clone()
		for k, v := range patch {
			a.rows[i][k] = v
		}
		updated = a.rows[i].Clone()
	}
	a.mu.Unlock()

	if updated == nil {
		return []remote.Row{}
	}
	a.broadcast(remote.EventUpdate, updated, old)
	return []remote.Row{updated}
}

func (a *fakeAPI) remove(id string) {
	a.mu.Lock()
	var old remote.Row
	for i, r := range a.rows {
		if r.ID() == id {
			old = r
			a.rows = append(a.rows[:i], a.rows[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	if old != nil {
		a.broadcast(remote.EventDelete, nil, remote.Row{"id": old.ID()})
	}
}

func (a *fakeAPI) serveSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("apikey") != testKey {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		a.wsMu.Lock()
		delete(a.clients, conn)
		a.wsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		a.wsMu.Lock()
		switch msg.Event {
		case eventJoin:
			a.clients[conn] = msg.Topic
		case eventLeave:
			delete(a.clients, conn)
		}
		reply, _ := json.Marshal(replyPayload{Status: "ok", Response: json.RawMessage(`{}`)})
		_ = conn.WriteJSON(phxMessage{Topic: msg.Topic, Event: eventReply, Payload: reply, Ref: msg.Ref})
		a.wsMu.Unlock()
	}
}

func (a *fakeAPI) broadcast(typ remote.EventType, record, old remote.Row) {
	var p changePayload
	p.Data.Type = typ
	p.Data.Table = "leads"
	p.Data.Record = record
	p.Data.OldRecord = old
	body, _ := json.Marshal(p)

	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	for conn, topic := range a.clients {
		if err := conn.WriteJSON(phxMessage{Topic: topic, Event: eventChanges, Payload: body}); err != nil {
			_ = conn.Close()
			delete(a.clients, conn)
		}
	}
}

func (a *fakeAPI) requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hits...)
}

func idFilter(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
}

func unknownColumn(rows ...remote.Row) string {
	for _, r := range rows {
		for k := range r {
			if !knownColumns[k] {
				return k
			}
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestTable(t *testing.T, url string) *Table {
	t.Helper()
	tbl, err := New(Config{URL: url, APIKey: testKey, HeartbeatInterval: 50 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	return tbl
}

func TestRESTCompliance(t *testing.T) {
	remotetest.Run(t, func(t *testing.T) remote.Table {
		_, srv := newFakeAPI(t)
		return newTestTable(t, srv.URL)
	})
}

func TestQueryEncoding(t *testing.T) {
	api, srv := newFakeAPI(t)
	tbl := newTestTable(t, srv.URL)
	ctx := context.Background()

	_, err := tbl.Select(ctx, "leads", remote.Order{Column: "created_at", Desc: true})
	require.NoError(t, err)
	_, err = tbl.Update(ctx, "leads", remote.ByID("abc"), remote.Row{"status": "Won"})
	require.NoError(t, err)
	require.NoError(t, tbl.Delete(ctx, "leads", remote.ByID("abc")))

	assert.Equal(t, []string{
		"GET order=created_at.desc&select=%2A",
		"PATCH id=eq.abc",
		"DELETE id=eq.abc",
	}, api.requests())
}

func TestUnknownColumnMapsToSentinel(t *testing.T) {
	_, srv := newFakeAPI(t)
	tbl := newTestTable(t, srv.URL)

	_, err := tbl.Insert(context.Background(), "leads", []remote.Row{{"nope": 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnknownColumn)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "PGRST204", apiErr.Code)
}

func TestBadAPIKey(t *testing.T) {
	_, srv := newFakeAPI(t)
	tbl, err := New(Config{URL: srv.URL, APIKey: "wrong"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = tbl.Select(context.Background(), "leads", remote.Order{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid api key", apiErr.Message)

	_, err = tbl.Subscribe(context.Background(), "leads", func(remote.ChangeEvent) {})
	assert.Error(t, err)
}

func TestRejectsBadIdentifiers(t *testing.T) {
	tbl := newTestTable(t, "http://127.0.0.1:1")

	_, err := tbl.Select(context.Background(), "leads; drop", remote.Order{})
	assert.ErrorIs(t, err, remote.ErrInvalidIdentifier)

	_, err = tbl.Select(context.Background(), "leads", remote.Order{Column: "Bad-Col"})
	assert.ErrorIs(t, err, remote.ErrInvalidIdentifier)
}

func TestSocketURL(t *testing.T) {
	tbl, err := New(Config{URL: "https://abc.supabase.co/", APIKey: "k"}, zerolog.Nop())
	require.NoError(t, err)

	u, err := tbl.socketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://abc.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0", u)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop())
	assert.Error(t, err)
}
