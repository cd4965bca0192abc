package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/remote/remotetest"
)

// Set CRM_TEST_MONGO_URI to a replica set to run the integration tests,
// e.g. mongodb://localhost:27017/?replicaSet=rs0
const uriEnv = "CRM_TEST_MONGO_URI"

func TestMongoCompliance(t *testing.T) {
	uri := os.Getenv(uriEnv)
	if uri == "" {
		t.Skipf("%s not set; skipping mongo integration test", uriEnv)
	}

	remotetest.Run(t, func(t *testing.T) remote.Table {
		ctx := context.Background()
		tbl, err := Open(ctx, uri, "travelcrm_test", zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, tbl.db.Collection(remotetest.Table).Drop(ctx))
		t.Cleanup(func() { _ = tbl.Close(context.Background()) })
		return tbl
	})
}

func TestOpenValidatesArguments(t *testing.T) {
	_, err := Open(context.Background(), "", "db", zerolog.Nop())
	assert.Error(t, err)

	_, err = Open(context.Background(), "mongodb://localhost", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestFromDocumentNormalizes(t *testing.T) {
	oid := bson.NewObjectID()
	when := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	row := fromDocument(bson.M{
		"_id":          oid,
		"created_at":   bson.NewDateTimeFromTime(when),
		"tags":         bson.A{"vip", "honeymoon"},
		"contact_info": bson.D{{Key: "phone", Value: "+91 98"}},
		"commercials":  bson.M{"quoted": int32(120000)},
	})

	assert.Equal(t, oid.Hex(), row.ID())
	assert.Equal(t, when, row["created_at"])
	assert.Equal(t, []any{"vip", "honeymoon"}, row["tags"])
	assert.Equal(t, map[string]any{"phone": "+91 98"}, row["contact_info"])
	assert.Equal(t, map[string]any{"quoted": int32(120000)}, row["commercials"])
	assert.NotContains(t, row, "_id")
}

func TestToDocument(t *testing.T) {
	local := time.Date(2024, 5, 1, 15, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	doc, err := toDocument(remote.Row{"id": "l1", "name": "Asha", "created_at": local})
	require.NoError(t, err)
	assert.Equal(t, "l1", doc["_id"])
	assert.NotContains(t, doc, "id")
	assert.Equal(t, time.UTC, doc["created_at"].(time.Time).Location())

	_, err = toDocument(remote.Row{"$where": "1"})
	assert.ErrorIs(t, err, remote.ErrInvalidIdentifier)
}

func TestToEvent(t *testing.T) {
	tests := []struct {
		name   string
		in     changeDoc
		want   remote.EventType
		wantID string
		ok     bool
	}{
		{
			name:   "insert",
			in:     changeDoc{OperationType: "insert", FullDocument: bson.M{"_id": "l1"}},
			want:   remote.EventInsert,
			wantID: "l1",
			ok:     true,
		},
		{
			name:   "replace maps to update",
			in:     changeDoc{OperationType: "replace", FullDocument: bson.M{"_id": "l1"}},
			want:   remote.EventUpdate,
			wantID: "l1",
			ok:     true,
		},
		{
			name: "update without lookup is skipped",
			in:   changeDoc{OperationType: "update"},
			want: remote.EventUpdate,
		},
		{
			name:   "delete uses document key",
			in:     changeDoc{OperationType: "delete", DocumentKey: bson.M{"_id": "l1"}},
			want:   remote.EventDelete,
			wantID: "l1",
			ok:     true,
		},
		{
			name: "drop is ignored",
			in:   changeDoc{OperationType: "drop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := toEvent("leads", tt.in)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.wantID, ev.RecordID())
			assert.Equal(t, "leads", ev.Table)
		})
	}
}

func TestInOrder(t *testing.T) {
	rows := []remote.Row{{"id": "b"}, {"id": "a"}}
	got := inOrder(rows, []string{"a", "b", "missing"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID())
	assert.Equal(t, "b", got[1].ID())
}
