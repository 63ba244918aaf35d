package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/typeflow/typeflow/internal/database/connectors"
)

// dsnFields is the subset of a decrypted credential's value a database
// handle needs to build a connection string; field names follow what the
// credentials UI collects for postgres/mysql/mongodb types.
type dsnFields struct {
	Host string `json:"host"`
	Port int `json:"port"`
	Database string `json:"database"`
	User string `json:"user"`
	Password string `json:"password"`
	SSLMode string `json:"sslMode"`
	URI string `json:"uri"`
}

func parseDSNFields(value map[string]any) dsnFields {
	var f dsnFields
	b, _ := json.Marshal(value)
	_ = json.Unmarshal(b, &f)
	return f
}

// Handle wraps one connectors.Connector for the lifetime of a code node's
// $credentials.<name> reference: created lazily, connects on first method
// call, closed when the execution that materialized it ends.
type Handle struct {
	mu sync.Mutex
	typ connectors.DatabaseType
	dsn string
	conn connectors.Connector
	closed bool
}

func newDatabaseHandle(typ connectors.DatabaseType, value map[string]any) (*Handle, error) {
	f := parseDSNFields(value)
	dsn := f.URI
	if dsn == "" {
		dsn = buildDSN(typ, f)
	}
	conn, err := connectors.NewConnectorFactory().CreateConnector(typ)
	if err != nil {
		return nil, err
	}
	return &Handle{typ: typ, dsn: dsn, conn: conn}, nil
}

func buildDSN(typ connectors.DatabaseType, f dsnFields) string {
	switch typ {
	case connectors.DatabaseTypePostgreSQL:
		sslMode := f.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", f.User, f.Password, f.Host, f.Port, f.Database, sslMode)
	case connectors.DatabaseTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", f.User, f.Password, f.Host, f.Port, f.Database)
	case connectors.DatabaseTypeMongoDB:
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s", f.User, f.Password, f.Host, f.Port, f.Database)
	default:
		return ""
	}
}

func (h *Handle) connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("credential handle closed")
	}
	return h.conn.Connect(ctx, h.dsn)
}

// Close releases the underlying connector. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}

// JSObject builds the method table the sandboxed script sees at
// $credentials.<name>, capability table. Keys are lowercase so
// goja exposes them to JS as ordinary callable properties without
// requiring exported Go method names.
func (h *Handle) JSObject(ctx context.Context) map[string]any {
	base := map[string]any{
		"connect": func() error { return h.connect(ctx) },
		"disconnect": func() error { return h.Close() },
	}
	switch h.typ {
	case connectors.DatabaseTypePostgreSQL:
		base["query"] = func(sqlText string, params ...any) (map[string]any, error) {
			if err := h.connect(ctx); err != nil {
				return nil, err
			}
			res, err := h.conn.Query(ctx, &connectors.QueryInput{Query: sqlText, Parameters: params})
			if err != nil {
				return nil, err
			}
			return map[string]any{"rows": res.Rows, "rowCount": res.RowsAffected}, nil
		}
	case connectors.DatabaseTypeMySQL:
		base["query"] = func(sqlText string, params ...any) ([]any, error) {
			if err := h.connect(ctx); err != nil {
				return nil, err
			}
			res, err := h.conn.Query(ctx, &connectors.QueryInput{Query: sqlText, Parameters: params})
			if err != nil {
				return nil, err
			}
			meta := map[string]any{"rowCount": res.RowsAffected, "executionMs": res.ExecutionMS}
			return []any{res.Rows, meta}, nil
		}
	case connectors.DatabaseTypeMongoDB:
		base["getDb"] = func() (map[string]any, error) {
			if err := h.connect(ctx); err != nil {
				return nil, err
			}
			return map[string]any{"connected": true}, nil
		}
		base["collection"] = func(name string) map[string]any {
			return mongoCollectionHandle(ctx, h, name)
		}
	}
	return base
}

// mongoCollectionHandle exposes find/insert scoped to one collection,
// reusing the connector's {"collection","filter"} query convention
// (see connectors.MongoDBConnector.Query).
func mongoCollectionHandle(ctx context.Context, h *Handle, name string) map[string]any {
	find := func(filter map[string]any) ([]map[string]any, error) {
		if err := h.connect(ctx); err != nil {
			return nil, err
		}
		query, _ := json.Marshal(map[string]any{"collection": name, "filter": filter})
		res, err := h.conn.Query(ctx, &connectors.QueryInput{Query: string(query)})
		if err != nil {
			return nil, err
		}
		return res.Rows, nil
	}
	insert := func(doc map[string]any) error {
		if err := h.connect(ctx); err != nil {
			return err
		}
		query, _ := json.Marshal(map[string]any{"collection": name, "document": doc})
		_, err := h.conn.Execute(ctx, &connectors.QueryInput{Query: string(query)})
		return err
	}
	return map[string]any{"find": find, "insert": insert}
}

// RedisHandle wraps a go-redis client, kept separate from Handle since
// redis has no entry in connectors.ConnectorFactory (it is a key-value
// store, not a row/document connector).
type RedisHandle struct {
	mu sync.Mutex
	client *redis.Client
	closed bool
}

func newRedisHandle(value map[string]any) (*RedisHandle, error) {
	f := parseDSNFields(value)
	addr := f.URI
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", f.Host, f.Port)
	}
	opts, err := redisOptions(addr, f.Password)
	if err != nil {
		return nil, err
	}
	return &RedisHandle{client: redis.NewClient(opts)}, nil
}

func redisOptions(addr, password string) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr, Password: password}, nil
}

func (h *RedisHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.client.Close()
}

// JSObject builds the redis handle's method table: get/set/connect/disconnect.
func (h *RedisHandle) JSObject(ctx context.Context) map[string]any {
	return map[string]any{
		"connect": func() error { _, err := h.client.Ping(ctx).Result(); return err },
		"disconnect": func() error { return h.Close() },
		"get": func(key string) (any, error) {
			val, err := h.client.Get(ctx, key).Result()
			if err == redis.Nil {
				return nil, nil
			}
			return val, err
		},
		"set": func(key string, value any, ttlSeconds ...int) error {
			var ttl time.Duration
			if len(ttlSeconds) > 0 {
				ttl = time.Duration(ttlSeconds[0]) * time.Second
			}
			return h.client.Set(ctx, key, value, ttl).Err()
		},
	}
}
