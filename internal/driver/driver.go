// Package driver turns scenario steps into statements executed against a
// database engine. One Adapter exists per supported (dbType, driver) pair.
package driver

import (
	"context"
	"fmt"
	"strconv"

	"dockbench/pkg/benchmark"
)

// DefaultBatchSize is the number of generated rows inserted per transaction
// when a populate step does not set one.
const DefaultBatchSize = 500

// Endpoint is everything an adapter needs to open a connection.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// EndpointFor combines the image configuration with the address the
// container is reachable at.
func EndpointFor(cfg benchmark.ImageConfig, host string, port int) Endpoint {
	return Endpoint{
		Host:     host,
		Port:     port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	}
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// Outcome is what executing one step produced.
type Outcome struct {
	RecordsAffected int64
	Info            string
}

// Conn is an open connection owned by exactly one run.
type Conn interface {
	Ping(ctx context.Context) error
	// Execute runs one step. On failure the returned Outcome still carries
	// the number of records that were committed before the error.
	Execute(ctx context.Context, step benchmark.Step) (Outcome, error)
	Close() error
}

// Adapter opens connections for one engine/driver pair.
type Adapter interface {
	Name() string
	Connect(ctx context.Context, ep Endpoint) (Conn, error)
}

// Embedded reports whether the adapter runs its engine in process against a
// local file, so there is no container to acquire, sample or release.
func Embedded(a Adapter) bool {
	e, ok := a.(interface{ Embedded() bool })
	return ok && e.Embedded()
}

// execute dispatches a step to the matching operation handler.
func execute(ctx context.Context, step benchmark.Step, ops operations) (Outcome, error) {
	if err := step.Validate(); err != nil {
		return Outcome{}, err
	}

	switch step.Operation {
	case benchmark.OpCreateTable:
		if err := ops.createTable(ctx, *step.CreateTable); err != nil {
			return Outcome{}, err
		}
		return Outcome{Info: step.Describe()}, nil
	case benchmark.OpPopulateTable:
		n, err := ops.populateTable(ctx, *step.PopulateTable)
		return Outcome{RecordsAffected: n, Info: step.Describe()}, err
	case benchmark.OpQuery:
		n, err := repeatQuery(ctx, *step.Query, ops.query)
		return Outcome{RecordsAffected: n, Info: step.Describe()}, err
	default:
		return Outcome{}, fmt.Errorf("unsupported operation %q", step.Operation)
	}
}

// operations is the per-engine implementation behind execute.
type operations interface {
	createTable(ctx context.Context, p benchmark.CreateTablePayload) error
	populateTable(ctx context.Context, p benchmark.PopulateTablePayload) (int64, error)
	query(ctx context.Context, statement string) (int64, error)
}

func batchSize(p benchmark.PopulateTablePayload) int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}
