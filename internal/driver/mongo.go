package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

type mongoDriver struct{}

// Mongo returns the document store adapter. Statements use the
// "[db.]collection.find({filter})" grammar and return one "document"
// column holding the JSON rendering of each document.
func Mongo() Driver {
	return mongoDriver{}
}

func (mongoDriver) Name() string {
	return "mongo"
}

func (mongoDriver) Open(ctx context.Context, desc Descriptor) (Handle, error) {
	uri := desc.DSN
	if len(desc.Options) > 0 {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + encodeOptions(desc.Options)
	}

	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("open mongo connection: invalid uri: %w", err)
	}

	opts := options.Client().ApplyURI(uri)
	if desc.Credentials.User != "" {
		opts.SetAuth(options.Credential{
			Username: desc.Credentials.User,
			Password: desc.Credentials.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open mongo connection: %w", err)
	}
	return &mongoHandle{client: client, database: cs.Database}, nil
}

type mongoHandle struct {
	client   *mongo.Client
	database string
}

func (h *mongoHandle) Prepare(_ context.Context, query string, _ Options) (Statement, error) {
	f, err := parseFind(query)
	if err != nil {
		return nil, err
	}
	f.client = h.client
	if f.database == "" {
		f.database = h.database
	}
	if f.database == "" {
		return nil, errors.New("no database: name it in the query or the connection uri")
	}
	return f, nil
}

func (h *mongoHandle) Probe(ctx context.Context) error {
	return h.client.Ping(ctx, nil)
}

func (h *mongoHandle) ErrorCode(err error) string {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return strconv.Itoa(int(ce.Code))
	}
	return ""
}

func (h *mongoHandle) Native() any {
	return h.client
}

func (h *mongoHandle) Close() error {
	return h.client.Disconnect(context.Background())
}

// findStatement is a parsed "[db.]collection.find(filter)" query.
type findStatement struct {
	client     *mongo.Client
	database   string
	collection string
	filter     bson.M
}

// parseFind extracts the JSON filter from between the first '(' and the last ')'.
// Without a database segment the handle falls back to the URI database.
func parseFind(query string) (*findStatement, error) {
	start := strings.Index(query, "(")
	end := strings.LastIndex(query, ")")
	if start == -1 || end == -1 || end < start {
		return nil, errors.New("invalid query format: expected collection.find(filter)")
	}

	jsonFilter := strings.TrimSpace(query[start+1 : end])
	if jsonFilter == "" {
		jsonFilter = "{}"
	}

	var filter bson.M
	if err := json.Unmarshal([]byte(jsonFilter), &filter); err != nil {
		return nil, fmt.Errorf("invalid filter JSON: %w", err)
	}

	segments := strings.Split(strings.TrimSpace(query[:start]), ".")
	if segments[len(segments)-1] != "find" {
		return nil, errors.New("only 'find' command is supported")
	}

	f := &findStatement{filter: filter}
	switch len(segments) {
	case 3:
		f.database, f.collection = segments[0], segments[1]
	case 2:
		f.collection = segments[0]
	default:
		return nil, errors.New("invalid query format: expected [db.]collection.find(...)")
	}
	return f, nil
}

func (f *findStatement) Query(ctx context.Context, args ...any) (RowStreamer, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("mongo find with bind values: %w", ErrUnsupported)
	}
	cursor, err := f.client.Database(f.database).Collection(f.collection).Find(ctx, f.filter)
	if err != nil {
		return nil, err
	}
	return &mongoRows{cursor: cursor, ctx: ctx}, nil
}

func (f *findStatement) Exec(context.Context, ...any) (Result, error) {
	return Result{}, fmt.Errorf("mongo exec: %w", ErrUnsupported)
}

func (f *findStatement) Close() error {
	return nil
}

// mongoRows implements RowStreamer over a cursor.
type mongoRows struct {
	cursor *mongo.Cursor
	ctx    context.Context
	row    bson.M
	err    error
}

func (s *mongoRows) Columns() ([]string, error) {
	return []string{"document"}, nil
}

// ColumnTypes is not applicable to Mongo in the SQL sense.
func (s *mongoRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return nil, nil
}

func (s *mongoRows) Next() bool {
	if s.cursor.Next(s.ctx) {
		s.row = nil
		if err := s.cursor.Decode(&s.row); err != nil {
			s.err = err
			return false
		}
		return true
	}
	s.err = s.cursor.Err()
	return false
}

func (s *mongoRows) Scan(dest ...interface{}) error {
	if len(dest) != 1 {
		return errors.New("expected exactly 1 destination for document")
	}

	data, err := json.Marshal(s.row)
	if err != nil {
		return err
	}

	switch v := dest[0].(type) {
	case *string:
		*v = string(data)
	case *interface{}:
		*v = string(data)
	default:
		return errors.New("destination must be *string or *interface{}")
	}
	return nil
}

func (s *mongoRows) Err() error {
	return s.err
}

func (s *mongoRows) Close() error {
	return s.cursor.Close(s.ctx)
}
