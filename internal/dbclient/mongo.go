package dbclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"etlpipe/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoConnector implements Connector for MongoDB. Tables map to
// collections and rows to documents with one field per column.
type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu      sync.Mutex
	cursor  *mongo.Cursor
	fetched int
}

// mongoQuery is the JSON form of a read query.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default) or aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

// buildMongoURI resolves the connection URI and database name.
func buildMongoURI(conn *domain.DatabaseConnection, password string) (uri, dbName string) {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}
	}

	dbName = conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "etl"
	}
	path := rest[slash+1:]
	if q := strings.Index(path, "?"); q != -1 {
		path = path[:q]
	}
	if path == "" {
		return "etl"
	}
	return path
}

func newMongoConnector(conn *domain.DatabaseConnection, password string) (*mongoConnector, error) {
	uri, dbName := buildMongoURI(conn, password)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	slog.Debug("dbclient: mongo client created", "connection", conn.Name, "database", dbName)
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// unmarshalEJSON converts Extended JSON values ($oid, $date, ...) to BSON.
func unmarshalEJSON(field map[string]any) (bson.D, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	return doc, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = 50
	}

	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	var (
		cursor *mongo.Cursor
		err    error
	)
	switch mq.Operation {
	case "", "find":
		cursor, err = m.find(ctx, coll, mq, fetchSize)
	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err = coll.Aggregate(ctx, pipeline)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", mq.Operation)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mq.Collection, err)
	}

	m.cursor = cursor
	m.fetched = 0
	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) find(ctx context.Context, coll *mongo.Collection, mq mongoQuery, fetchSize int) (*mongo.Cursor, error) {
	filter, err := unmarshalEJSON(mq.Filter)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find().SetBatchSize(int32(fetchSize))
	if mq.Projection != nil {
		proj, err := unmarshalEJSON(mq.Projection)
		if err != nil {
			return nil, err
		}
		opts.SetProjection(proj)
	}
	if mq.Sort != nil {
		sort, err := unmarshalEJSON(mq.Sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(sort)
	}
	if mq.Limit > 0 {
		opts.SetLimit(mq.Limit)
	}
	return coll.Find(ctx, filter, opts)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor: execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchMongoBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	m.fetched += len(docs)

	columns := documentColumns(docs)
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		for _, elem := range doc {
			if j := slices.Index(columns, elem.Key); j >= 0 {
				row[j] = bsonScalar(elem.Value)
			}
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// documentColumns collects keys in first-seen order with _id moved first.
func documentColumns(docs []bson.D) []string {
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !slices.Contains(columns, elem.Key) {
				columns = append(columns, elem.Key)
			}
		}
	}
	if i := slices.Index(columns, "_id"); i > 0 {
		columns = append([]string{"_id"}, slices.Delete(columns, i, i+1)...)
	}
	return columns
}

// bsonScalar maps a BSON value to a frame scalar.
func bsonScalar(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64:
		return val
	case int32:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// WriteTable loads the frame into a collection. Replace drops the
// collection first; append compares the sampled document's fields.
func (m *mongoConnector) WriteTable(ctx context.Context, table string, f *domain.Frame, mode domain.WriteMode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCursorLocked(ctx)

	coll := m.client.Database(m.dbName).Collection(table)

	switch mode {
	case domain.WriteReplace:
		if err := coll.Drop(ctx); err != nil {
			return 0, fmt.Errorf("%w: drop %s: %w", domain.ErrSinkWrite, table, err)
		}
	case domain.WriteAppend:
		var sample bson.D
		err := coll.FindOne(ctx, bson.D{}, options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 0}})).Decode(&sample)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return 0, fmt.Errorf("%w: sample %s: %w", domain.ErrSinkWrite, table, err)
		default:
			keys := make([]string, len(sample))
			for i, e := range sample {
				keys[i] = e.Key
			}
			if !slices.Equal(keys, f.Columns()) {
				return 0, fmt.Errorf("%w: collection %s has fields %v, frame has %v",
					domain.ErrSchemaMismatch, table, keys, f.Columns())
			}
		}
	default:
		return 0, fmt.Errorf("unknown write mode %q", mode)
	}

	if f.Len() == 0 {
		return 0, nil
	}
	columns := f.Columns()
	docs := make([]any, f.Len())
	for i := range docs {
		row := f.Row(i)
		doc := make(bson.D, len(columns))
		for j, name := range columns {
			doc[j] = bson.E{Key: name, Value: row[j]}
		}
		docs[i] = doc
	}
	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("%w: insert into %s: %w", domain.ErrSinkWrite, table, err)
	}
	return len(res.InsertedIDs), nil
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)

	collections, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	slices.Sort(collections)

	schema := &SchemaInfo{}
	for _, collName := range collections {
		var doc bson.D
		var cols []ColumnInfo
		if err := db.Collection(collName).FindOne(ctx, bson.D{}).Decode(&doc); err == nil {
			for _, e := range doc {
				cols = append(cols, ColumnInfo{Name: e.Key, Type: fmt.Sprintf("%T", e.Value)})
			}
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: collName, Columns: cols})
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
