package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/typeflow/typeflow/internal/database/connectors"
)

// executionResolverUser is the actor recorded against a credential's
// access log when the graph executor materializes a handle on a code
// node's behalf; no end user is present at execution time.
const executionResolverUser = "workflow-executor"

// closer is satisfied by both *Handle and *RedisHandle.
type closer interface{ Close() error }

// HandleResolver materializes $credentials.<name> handles for one
// execution: looks the credential up by name within the
// organization, decrypts it, and builds the typed handle (or, for
// non-database credential types, exposes the decrypted fields as-is).
// Handles opened during the execution are tracked and released together
// by Release, regardless of how the execution ended.
type HandleResolver struct {
	service Service
	logger *slog.Logger

	mu sync.Mutex
	opened []closer
}

// NewHandleResolver constructs a resolver bound to the credential service.
func NewHandleResolver(service Service, logger *slog.Logger) *HandleResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandleResolver{service: service, logger: logger}
}

// ResolveHandle satisfies executor.CredentialResolver.
func (r *HandleResolver) ResolveHandle(ctx context.Context, organizationID, name string) (any, error) {
	cred, err := r.findByName(ctx, organizationID, name)
	if err != nil {
		return nil, err
	}
	decrypted, err := r.service.GetValue(ctx, organizationID, cred.ID, executionResolverUser)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential %q: %w", name, err)
	}

	dbType, ok := databaseType(cred.Type)
	if !ok {
		// Non-database credentials (api_key, oauth2, ...) expose their
		// decrypted fields directly; the code node reads e.g.
		// $credentials.stripe.key rather than calling a method.
		return decrypted.Value, nil
	}

	if dbType == connectors.DatabaseType("redis") {
		h, err := newRedisHandle(decrypted.Value)
		if err != nil {
			return nil, fmt.Errorf("building redis handle for %q: %w", name, err)
		}
		r.track(h)
		return h.JSObject(ctx), nil
	}

	h, err := newDatabaseHandle(dbType, decrypted.Value)
	if err != nil {
		return nil, fmt.Errorf("building %s handle for %q: %w", dbType, name, err)
	}
	r.track(h)
	return h.JSObject(ctx), nil
}

// Scope returns a fresh resolver sharing the same credential service but
// tracking its own opened handles, plus a release func that closes them.
// Satisfies executor.ScopedCredentialResolver.
func (r *HandleResolver) Scope() (scoped interface {
	ResolveHandle(ctx context.Context, organizationID, name string) (any, error)
}, release func()) {
s := NewHandleResolver(r.service, r.logger)
return s, s.Release
}

func (r *HandleResolver) track(c closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, c)
}

// Release closes every handle this resolver opened during the execution
// (: "pooled per-execution, and closed when the execution ends").
func (r *HandleResolver) Release() {
	r.mu.Lock()
	opened := r.opened
	r.opened = nil
	r.mu.Unlock()
	for _, c := range opened {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close credential handle", "error", err)
		}
	}
}

func (r *HandleResolver) findByName(ctx context.Context, organizationID, name string) (*Credential, error) {
	matches, err := r.service.List(ctx, organizationID, CredentialListFilter{Search: name}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("looking up credential %q: %w", name, err)
	}
	for _, c := range matches {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("credential %q not found", name)
}

func databaseType(t CredentialType) (connectors.DatabaseType, bool) {
	switch t {
	case TypeDatabasePostgreSQL:
		return connectors.DatabaseTypePostgreSQL, true
	case TypeDatabaseMySQL:
		return connectors.DatabaseTypeMySQL, true
	case TypeDatabaseSQLite:
		return connectors.DatabaseTypeSQLite, true
	case TypeDatabaseMongoDB:
		return connectors.DatabaseTypeMongoDB, true
	case TypeDatabaseRedis:
		return connectors.DatabaseType("redis"), true
	default:
		return "", false
	}
}
