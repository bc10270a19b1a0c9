package driver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"dockbench/pkg/benchmark"
)

// sqlAdapter serves every engine reachable through database/sql.
type sqlAdapter struct {
	name         string
	driverName   string
	dialect      dialect
	dsn          func(Endpoint) string
	maxOpenConns int
	embedded     bool
}

// NewPostgresAdapter returns the lib/pq based postgresql adapter.
func NewPostgresAdapter() Adapter {
	return &sqlAdapter{
		name:       "postgresql/pq",
		driverName: "postgres",
		dialect:    postgresDialect,
		dsn:        postgresURL,
	}
}

// NewMySQLAdapter returns the go-sql-driver based mysql adapter.
func NewMySQLAdapter() Adapter {
	return &sqlAdapter{
		name:       "mysql/mysql",
		driverName: "mysql",
		dialect:    mysqlDialect,
		dsn:        mysqlDSN,
	}
}

// NewSQLiteAdapter returns the sqlite3 adapter. The endpoint's DBName is the
// database file path; host and port are ignored.
func NewSQLiteAdapter() Adapter {
	return &sqlAdapter{
		name:         "sqlite/sqlite3",
		driverName:   "sqlite3",
		dialect:      sqliteDialect,
		dsn:          sqliteDSN,
		maxOpenConns: 1,
		embedded:     true,
	}
}

func postgresURL(ep Endpoint) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     ep.Addr(),
		Path:     "/" + ep.DBName,
		RawQuery: "sslmode=disable",
	}
	if ep.User != "" {
		u.User = url.UserPassword(ep.User, ep.Password)
	}
	return u.String()
}

func mysqlDSN(ep Endpoint) string {
	cfg := mysql.NewConfig()
	cfg.User = ep.User
	cfg.Passwd = ep.Password
	cfg.Net = "tcp"
	cfg.Addr = ep.Addr()
	cfg.DBName = ep.DBName
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func sqliteDSN(ep Endpoint) string {
	path := ep.DBName
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_busy_timeout=5000"
}

func (a *sqlAdapter) Name() string { return a.name }

func (a *sqlAdapter) Embedded() bool { return a.embedded }

func (a *sqlAdapter) Connect(ctx context.Context, ep Endpoint) (Conn, error) {
	db, err := sql.Open(a.driverName, a.dsn(ep))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", a.name, err)
	}
	if a.maxOpenConns > 0 {
		db.SetMaxOpenConns(a.maxOpenConns)
	}
	return &sqlConn{db: db, dialect: a.dialect}, nil
}

type sqlConn struct {
	db      *sql.DB
	dialect dialect
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqlConn) Close() error {
	return c.db.Close()
}

func (c *sqlConn) Execute(ctx context.Context, step benchmark.Step) (Outcome, error) {
	return execute(ctx, step, c)
}

func (c *sqlConn) createTable(ctx context.Context, p benchmark.CreateTablePayload) error {
	if p.DDL != "" {
		_, err := c.db.ExecContext(ctx, p.DDL)
		return err
	}

	if _, err := c.db.ExecContext(ctx, c.dialect.dropTable(p.Table)); err != nil {
		return fmt.Errorf("drop table %s: %w", p.Table, err)
	}
	if _, err := c.db.ExecContext(ctx, c.dialect.createTable(p.Table, p.Columns)); err != nil {
		return fmt.Errorf("create table %s: %w", p.Table, err)
	}
	return nil
}

func (c *sqlConn) populateTable(ctx context.Context, p benchmark.PopulateTablePayload) (int64, error) {
	gen, err := NewGenerator(p.Columns, p.RowCount, 0)
	if err != nil {
		return 0, err
	}

	columns := gen.Columns()
	size := batchSize(p)
	perStatement := c.dialect.rowsPerStatement(len(columns))

	var committed int64
	for start := 0; start < p.RowCount; start += size {
		n := min(size, p.RowCount-start)
		if err := c.insertBatch(ctx, p.Table, columns, gen.Rows(start, n), perStatement); err != nil {
			return committed, fmt.Errorf("insert batch at row %d: %w", start, err)
		}
		committed += int64(n)
	}
	return committed, nil
}

// insertBatch writes rows in one transaction using multi-row INSERTs.
func (c *sqlConn) insertBatch(ctx context.Context, table string, columns []string, rows [][]any, perStatement int) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for len(rows) > 0 {
		n := min(perStatement, len(rows))
		args := make([]any, 0, n*len(columns))
		for _, row := range rows[:n] {
			args = append(args, row...)
		}
		if _, err = tx.ExecContext(ctx, c.dialect.insert(table, columns, n), args...); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return tx.Commit()
}

func (c *sqlConn) query(ctx context.Context, statement string) (int64, error) {
	if !ReturnsRows(statement) {
		res, err := c.db.ExecContext(ctx, statement)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			// Not every driver reports affected rows for every statement.
			return 0, nil
		}
		return n, nil
	}

	rows, err := c.db.QueryContext(ctx, statement)
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
