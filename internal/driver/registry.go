package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	bencherrors "dockbench/internal/errors"
)

type key struct {
	dbType string
	driver string
}

func (k key) String() string {
	return k.dbType + "/" + k.driver
}

var dbTypeAliases = map[string]string{
	"postgres": "postgresql",
	"pg":       "postgresql",
	"mariadb":  "mysql",
	"sqlite3":  "sqlite",
}

var driverAliases = map[string]string{
	"psycopg2":   "pq",
	"postgres":   "pq",
	"postgresql": "pq",
	"pymysql":    "mysql",
	"mysqldb":    "mysql",
	"sqlite":     "sqlite3",
	"pysqlite":   "sqlite3",
	"go-redis":   "redis",
}

func normalize(dbType, driver string) key {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if alias, ok := dbTypeAliases[t]; ok {
		t = alias
	}
	d := strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := driverAliases[d]; ok {
		d = alias
	}
	return key{dbType: t, driver: d}
}

// Registry resolves adapters by (dbType, driver).
type Registry struct {
	mu       sync.RWMutex
	adapters map[key]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[key]Adapter)}
}

// DefaultRegistry returns a registry holding every built-in adapter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("postgresql", "pgx", NewPgxAdapter())
	r.Register("postgresql", "pq", NewPostgresAdapter())
	r.Register("mysql", "mysql", NewMySQLAdapter())
	r.Register("sqlite", "sqlite3", NewSQLiteAdapter())
	r.Register("redis", "redis", NewRedisAdapter())
	return r
}

// Register adds or replaces the adapter for a pair.
func (r *Registry) Register(dbType, driver string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[normalize(dbType, driver)] = a
}

// Lookup returns the adapter for a pair or an unsupported driver error.
func (r *Registry) Lookup(dbType, driver string) (Adapter, error) {
	k := normalize(dbType, driver)

	r.mu.RLock()
	a, ok := r.adapters[k]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	return nil, bencherrors.NewUnsupportedDriverError(
		fmt.Sprintf("No driver adapter for %s", k),
		fmt.Sprintf("dbType %q with driver %q is not supported", dbType, driver),
		"Supported combinations: "+strings.Join(r.Supported(), ", "),
		nil,
	)
}

// Supported lists the registered pairs as dbType/driver, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
