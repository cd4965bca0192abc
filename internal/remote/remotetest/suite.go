// Package remotetest is a compliance suite for remote.Table backends.
package remotetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/remote"
)

// Table is the table every backend under test must provide, with the
// leads schema applied.
const Table = "leads"

// Run exercises the remote.Table contract. makeTable must return a table
// whose leads table contains no rows with the ids the suite generates.
func Run(t *testing.T, makeTable func(t *testing.T) remote.Table) {
	t.Helper()

	t.Run("InsertAssignsIDs", func(t *testing.T) {
		tbl := makeTable(t)
		rows, err := tbl.Insert(context.Background(), Table, []remote.Row{
			{"name": "No ID"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.NotEmpty(t, rows[0].ID())
		assert.Equal(t, "No ID", rows[0]["name"])
	})

	t.Run("InsertSelectUpdateDelete", func(t *testing.T) {
		tbl := makeTable(t)
		ctx := context.Background()
		older, newer := uniqueID(), uniqueID()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		rows, err := tbl.Insert(ctx, Table, []remote.Row{
			{"id": older, "name": "Older", "created_at": base, "tags": []any{"vip"}},
			{"id": newer, "name": "Newer", "created_at": base.Add(time.Hour)},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []any{"vip"}, rows[0]["tags"])

		all, err := tbl.Select(ctx, Table, remote.Order{Column: "created_at", Desc: true})
		require.NoError(t, err)
		assert.Less(t, position(all, newer), position(all, older))

		updated, err := tbl.Update(ctx, Table, remote.ByID(older), remote.Row{"status": "Won"})
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, "Won", updated[0]["status"])
		assert.Equal(t, "Older", updated[0]["name"])

		missing, err := tbl.Update(ctx, Table, remote.ByID(uniqueID()), remote.Row{"status": "Won"})
		require.NoError(t, err)
		assert.Empty(t, missing)

		require.NoError(t, tbl.Delete(ctx, Table, remote.ByID(older)))
		all, err = tbl.Select(ctx, Table, remote.Order{})
		require.NoError(t, err)
		assert.Equal(t, -1, position(all, older))
		assert.GreaterOrEqual(t, position(all, newer), 0)
	})

	t.Run("ChangeFeed", func(t *testing.T) {
		tbl := makeTable(t)
		ctx := context.Background()
		events := make(chan remote.ChangeEvent, 64)

		sub, err := tbl.Subscribe(ctx, Table, func(ev remote.ChangeEvent) { events <- ev })
		require.NoError(t, err)
		defer func() { _ = sub.Unsubscribe() }()

		// Some feeds need a moment after subscribing before they deliver.
		time.Sleep(200 * time.Millisecond)

		id := uniqueID()
		_, err = tbl.Insert(ctx, Table, []remote.Row{{"id": id, "name": "Feed"}})
		require.NoError(t, err)
		_, err = tbl.Update(ctx, Table, remote.ByID(id), remote.Row{"status": "Contacted"})
		require.NoError(t, err)
		require.NoError(t, tbl.Delete(ctx, Table, remote.ByID(id)))

		for _, want := range []remote.EventType{remote.EventInsert, remote.EventUpdate, remote.EventDelete} {
			ev := waitFor(t, events, id, want)
			if want == remote.EventUpdate {
				assert.Equal(t, "Contacted", ev.New["status"])
			}
		}
	})
}

func waitFor(t *testing.T, events <-chan remote.ChangeEvent, id string, typ remote.EventType) remote.ChangeEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.RecordID() == id && ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s of %s", typ, id)
			return remote.ChangeEvent{}
		}
	}
}

func position(rows []remote.Row, id string) int {
	for i, r := range rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func uniqueID() string {
	return fmt.Sprintf("test-%s", uuid.NewString())
}
