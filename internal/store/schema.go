package store

const schema = `
CREATE TABLE IF NOT EXISTS test_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    db_image TEXT NOT NULL,
    operation TEXT NOT NULL,
    num_records INTEGER NOT NULL DEFAULT 0,
    test_info TEXT NOT NULL DEFAULT '',
    exec_time_ns INTEGER NOT NULL DEFAULT 0,
    memory_bytes INTEGER NOT NULL DEFAULT 0,
    cpu_percent REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_test_results_image ON test_results(db_image);
CREATE INDEX IF NOT EXISTS idx_test_results_operation ON test_results(operation);
`

// columnMigrations are added to databases created before runs were tracked.
var columnMigrations = []struct {
	column string
	ddl    string
}{
	{"run_id", `ALTER TABLE test_results ADD COLUMN run_id TEXT NOT NULL DEFAULT ''`},
	{"step_index", `ALTER TABLE test_results ADD COLUMN step_index INTEGER NOT NULL DEFAULT 0`},
	{"status", `ALTER TABLE test_results ADD COLUMN status TEXT NOT NULL DEFAULT 'ok'`},
}

const runIndex = `CREATE INDEX IF NOT EXISTS idx_test_results_run ON test_results(run_id, step_index)`

// sortColumns maps accepted sort keys to columns.
var sortColumns = map[string]string{
	"id":         "id",
	"timestamp":  "timestamp",
	"dbImage":    "db_image",
	"db_image":   "db_image",
	"operation":  "operation",
	"numRecords": "num_records",
	"execTime":   "exec_time_ns",
	"memory":     "memory_bytes",
	"cpuPercent": "cpu_percent",
	"cpu":        "cpu_percent",
}

const resultColumns = `id, run_id, step_index, timestamp, db_image, operation, num_records, test_info, status, exec_time_ns, memory_bytes, cpu_percent`
