package driver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dockbench/pkg/benchmark"
)

// pgxAdapter talks to postgresql through a pgx pool and populates tables
// with COPY.
type pgxAdapter struct{}

// NewPgxAdapter returns the pgx based postgresql adapter.
func NewPgxAdapter() Adapter {
	return pgxAdapter{}
}

func (pgxAdapter) Name() string { return "postgresql/pgx" }

func (pgxAdapter) Connect(ctx context.Context, ep Endpoint) (Conn, error) {
	cfg, err := pgxpool.ParseConfig(postgresURL(ep))
	if err != nil {
		return nil, fmt.Errorf("invalid postgresql endpoint: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return &pgxConn{pool: pool}, nil
}

type pgxConn struct {
	pool *pgxpool.Pool
}

func (c *pgxConn) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *pgxConn) Close() error {
	c.pool.Close()
	return nil
}

func (c *pgxConn) Execute(ctx context.Context, step benchmark.Step) (Outcome, error) {
	return execute(ctx, step, c)
}

func (c *pgxConn) createTable(ctx context.Context, p benchmark.CreateTablePayload) error {
	if p.DDL != "" {
		_, err := c.pool.Exec(ctx, p.DDL)
		return err
	}

	if _, err := c.pool.Exec(ctx, postgresDialect.dropTable(p.Table)); err != nil {
		return fmt.Errorf("drop table %s: %w", p.Table, err)
	}
	if _, err := c.pool.Exec(ctx, postgresDialect.createTable(p.Table, p.Columns)); err != nil {
		return fmt.Errorf("create table %s: %w", p.Table, err)
	}
	return nil
}

// populateTable copies each batch with its own COPY, so a failure leaves
// earlier batches committed.
func (c *pgxConn) populateTable(ctx context.Context, p benchmark.PopulateTablePayload) (int64, error) {
	gen, err := NewGenerator(p.Columns, p.RowCount, 0)
	if err != nil {
		return 0, err
	}

	columns := gen.Columns()
	size := batchSize(p)

	var committed int64
	for start := 0; start < p.RowCount; start += size {
		n := min(size, p.RowCount-start)
		copied, err := c.pool.CopyFrom(ctx, pgx.Identifier{p.Table}, columns, pgx.CopyFromRows(gen.Rows(start, n)))
		if err != nil {
			return committed, fmt.Errorf("copy batch at row %d: %w", start, err)
		}
		committed += copied
	}
	return committed, nil
}

func (c *pgxConn) query(ctx context.Context, statement string) (int64, error) {
	if !ReturnsRows(statement) {
		tag, err := c.pool.Exec(ctx, statement)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	rows, err := c.pool.Query(ctx, statement)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
