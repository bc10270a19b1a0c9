package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dockbench/pkg/benchmark"
)

// timestamps are stored fixed width in UTC so they sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a ResultStore backed by a SQLite file.
type SQLiteStore struct {
	mu   sync.Mutex
	conn *sql.DB
}

var _ ResultStore = (*SQLiteStore)(nil)

// Open opens or creates the result database at path.
func Open(path string) (*SQLiteStore, error) {
	// pragmas go in the DSN so every pooled connection gets them
	conn, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// runMigrations adds columns missing from older databases.
func (s *SQLiteStore) runMigrations() error {
	for _, m := range columnMigrations {
		var exists bool
		err := s.conn.QueryRow(`
			SELECT COUNT(*) > 0
			FROM pragma_table_info('test_results')
			WHERE name = ?`, m.column,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", m.column, err)
		}
		if exists {
			continue
		}
		if _, err := s.conn.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
	}
	_, err := s.conn.Exec(runIndex)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Append inserts result and sets its ID.
func (s *SQLiteStore) Append(ctx context.Context, result *benchmark.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO test_results (run_id, step_index, timestamp, db_image, operation, num_records, test_info, status, exec_time_ns, memory_bytes, cpu_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.StepIndex, ts.UTC().Format(timestampLayout), result.DBImage, string(result.Operation),
		result.NumRecords, result.TestInfo, result.Status, int64(result.ExecTime), int64(result.Memory), result.CPUPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}

	result.ID = id
	result.Timestamp = ts
	return nil
}

// List returns results matching filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]benchmark.TestResult, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []benchmark.TestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func buildListQuery(filter Filter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	if filter.DBImage != "" {
		where = append(where, "db_image = ?")
		args = append(args, filter.DBImage)
	}
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, filter.Operation)
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "timestamp"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "", nil, fmt.Errorf("cannot sort by %q (valid: %s)", filter.SortBy, strings.Join(SortKeys(), ", "))
	}

	var direction string
	switch strings.ToLower(filter.Order) {
	case "", "desc":
		direction = "DESC"
	case "asc":
		direction = "ASC"
	default:
		return "", nil, fmt.Errorf("invalid sort order %q (valid: asc, desc)", filter.Order)
	}

	var b strings.Builder
	b.WriteString("SELECT " + resultColumns + " FROM test_results")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", column, direction, direction)
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	return b.String(), args, nil
}

// SortKeys lists the accepted Filter.SortBy values.
func SortKeys() []string {
	keys := make([]string, 0, len(sortColumns))
	for k := range sortColumns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (benchmark.TestResult, error) {
	var (
		r         benchmark.TestResult
		ts        string
		operation string
		execNs    int64
		memory    int64
	)
	err := row.Scan(&r.ID, &r.RunID, &r.StepIndex, &ts, &r.DBImage, &operation, &r.NumRecords,
		&r.TestInfo, &r.Status, &execNs, &memory, &r.CPUPercent)
	if err != nil {
		return r, err
	}
	r.Operation = benchmark.Operation(operation)
	r.ExecTime = time.Duration(execNs)
	r.Memory = uint64(memory)
	r.Timestamp, err = time.Parse(timestampLayout, ts)
	if err != nil {
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	}
	return r, err
}

// Get returns the result with id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (benchmark.TestResult, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+resultColumns+" FROM test_results WHERE id = ?", id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("result %d: %w", id, ErrResultNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("failed to get result: %w", err)
	}
	return r, nil
}

// Delete removes the result with id.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, "DELETE FROM test_results WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("result %d: %w", id, ErrResultNotFound)
	}
	return nil
}

// DistinctImages lists every image with at least one result.
func (s *SQLiteStore) DistinctImages(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "db_image")
}

// DistinctOperations lists every operation with at least one result.
func (s *SQLiteStore) DistinctOperations(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "operation")
}

func (s *SQLiteStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT DISTINCT "+column+" FROM test_results ORDER BY "+column)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
