// Package mongo is a remote.Table backed by a MongoDB collection. The
// change feed is a change stream, which needs a replica set or sharded
// cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nhle/travel-crm/internal/remote"
)

const (
	mongoID        = "_id"
	reconnectDelay = 2 * time.Second
)

// Table implements remote.Table on one MongoDB database. Each table name
// maps to a collection of the same name.
type Table struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
	now    func() time.Time
}

// Open connects to uri and pings the server.
func Open(ctx context.Context, uri, database string, log zerolog.Logger) (*Table, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if database == "" {
		return nil, errors.New("mongo database is empty")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &Table{
		client: client,
		db:     client.Database(database),
		log:    log,
		now:    time.Now,
	}, nil
}

// Close disconnects the client.
func (t *Table) Close(ctx context.Context) error {
	return t.client.Disconnect(ctx)
}

func (t *Table) collection(table string) (*mongo.Collection, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}
	return t.db.Collection(table), nil
}

// Select returns every document of the collection in the given order.
func (t *Table) Select(ctx context.Context, table string, order remote.Order) ([]remote.Row, error) {
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if order.Column != "" {
		if err := remote.ValidIdentifier(order.Column); err != nil {
			return nil, err
		}
		direction := 1
		if order.Desc {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: field(order.Column), Value: direction}})
	}

	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return readAll(ctx, cur)
}

// Insert writes rows, assigning ObjectID hex ids and created_at when they
// are missing, and returns the documents as stored.
func (t *Table) Insert(ctx context.Context, table string, rows []remote.Row) ([]remote.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}

	docs := make([]bson.M, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		doc, err := toDocument(r)
		if err != nil {
			return nil, err
		}
		if id, _ := doc[mongoID].(string); id == "" {
			doc[mongoID] = bson.NewObjectID().Hex()
		}
		if _, ok := doc[remote.ColumnCreatedAt]; !ok {
			doc[remote.ColumnCreatedAt] = t.now().UTC()
		}
		docs = append(docs, doc)
		ids = append(ids, doc[mongoID].(string))
	}

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}

	cur, err := coll.Find(ctx, bson.M{mongoID: bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("reading back %s: %w", table, err)
	}
	stored, err := readAll(ctx, cur)
	if err != nil {
		return nil, err
	}
	return inOrder(stored, ids), nil
}

// Update sets patch on the documents matching filter and returns them as
// stored after the write.
func (t *Table) Update(
	ctx context.Context,
	table string,
	filter remote.Filter,
	patch remote.Row,
) ([]remote.Row, error) {
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}
	query, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	set, err := toDocument(patch)
	if err != nil {
		return nil, err
	}
	delete(set, mongoID)

	if filter.Column == remote.ColumnID {
		var doc bson.M
		if len(set) == 0 {
			err = coll.FindOne(ctx, query).Decode(&doc)
		} else {
			opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
			err = coll.FindOneAndUpdate(ctx, query, bson.M{"$set": set}, opts).Decode(&doc)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []remote.Row{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("updating %s: %w", table, err)
		}
		return []remote.Row{fromDocument(doc)}, nil
	}

	if len(set) > 0 {
		if _, err := coll.UpdateMany(ctx, query, bson.M{"$set": set}); err != nil {
			return nil, fmt.Errorf("updating %s: %w", table, err)
		}
	}
	cur, err := coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading back %s: %w", table, err)
	}
	return readAll(ctx, cur)
}

// Delete removes the documents matching filter.
func (t *Table) Delete(ctx context.Context, table string, filter remote.Filter) error {
	coll, err := t.collection(table)
	if err != nil {
		return err
	}
	query, err := toFilter(filter)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteMany(ctx, query); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

// changeDoc is the subset of a change stream event the feed uses.
type changeDoc struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
	DocumentKey   bson.M `bson:"documentKey"`
}

// Subscribe opens a change stream on the collection. The stream resumes
// from its last token after errors until Unsubscribe is called.
func (t *Table) Subscribe(ctx context.Context, table string, h remote.Handler) (remote.Subscription, error) {
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := coll.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", table, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.watchLoop(lctx, coll, stream, table, h)
	}()

	return remote.SubscriptionFunc(func() error {
		cancel()
		<-done
		return nil
	}), nil
}

func (t *Table) watchLoop(
	ctx context.Context,
	coll *mongo.Collection,
	stream *mongo.ChangeStream,
	table string,
	h remote.Handler,
) {
	var resumeToken bson.Raw
	defer func() {
		if stream != nil {
			_ = stream.Close(context.Background())
		}
	}()

	for {
		if stream == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
			if resumeToken != nil {
				opts.SetResumeAfter(resumeToken)
			}
			s, err := coll.Watch(ctx, mongo.Pipeline{}, opts)
			if err != nil {
				t.log.Warn().Err(err).Str("table", table).Msg("re-opening change stream failed")
				continue
			}
			stream = s
		}

		for stream.Next(ctx) {
			var cd changeDoc
			if err := stream.Decode(&cd); err != nil {
				t.log.Error().Err(err).Str("table", table).Msg("decoding change event")
				continue
			}
			resumeToken = stream.ResumeToken()
			if ev, ok := toEvent(table, cd); ok {
				t.deliver(h, ev)
			}
		}

		if ctx.Err() != nil {
			return
		}
		t.log.Warn().Err(stream.Err()).Str("table", table).Msg("change stream interrupted")
		_ = stream.Close(context.Background())
		stream = nil
	}
}

func (t *Table) deliver(h remote.Handler, ev remote.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Str("table", ev.Table).
				Msg("change feed handler panicked")
		}
	}()
	h(ev)
}

func toEvent(table string, cd changeDoc) (remote.ChangeEvent, bool) {
	ev := remote.ChangeEvent{Table: table}
	switch cd.OperationType {
	case "insert":
		ev.Type = remote.EventInsert
	case "update", "replace":
		ev.Type = remote.EventUpdate
	case "delete":
		ev.Type = remote.EventDelete
		ev.Old = fromDocument(cd.DocumentKey)
		return ev, ev.Old.ID() != ""
	default:
		return ev, false
	}
	if cd.FullDocument == nil {
		return ev, false
	}
	ev.New = fromDocument(cd.FullDocument)
	return ev, true
}

func readAll(ctx context.Context, cur *mongo.Cursor) ([]remote.Row, error) {
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading cursor: %w", err)
	}
	out := make([]remote.Row, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func inOrder(rows []remote.Row, ids []string) []remote.Row {
	byID := make(map[string]remote.Row, len(rows))
	for _, r := range rows {
		byID[r.ID()] = r
	}
	out := make([]remote.Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func field(column string) string {
	if column == remote.ColumnID {
		return mongoID
	}
	return column
}

func toFilter(f remote.Filter) (bson.M, error) {
	if err := remote.ValidIdentifier(f.Column); err != nil {
		return nil, err
	}
	return bson.M{field(f.Column): f.Value}, nil
}

// toDocument maps a row to a document, renaming id to _id. Field names
// must be plain identifiers, which rules out $-operators.
func toDocument(r remote.Row) (bson.M, error) {
	doc := make(bson.M, len(r))
	for k, v := range r {
		if err := remote.ValidIdentifier(k); err != nil {
			return nil, err
		}
		if tv, ok := v.(time.Time); ok {
			v = tv.UTC()
		}
		doc[field(k)] = v
	}
	return doc, nil
}

// fromDocument maps a document back to a row with plain Go values.
func fromDocument(doc bson.M) remote.Row {
	if doc == nil {
		return nil
	}
	row := make(remote.Row, len(doc))
	for k, v := range doc {
		if k == mongoID {
			k = remote.ColumnID
			if oid, ok := v.(bson.ObjectID); ok {
				v = oid.Hex()
			}
		}
		row[k] = normalize(v)
	}
	return row
}

func normalize(v any) any {
	switch x := v.(type) {
	case bson.DateTime:
		return x.Time().UTC()
	case bson.ObjectID:
		return x.Hex()
	case bson.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalize(x[i])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalize(x[i])
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
