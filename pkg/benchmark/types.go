package benchmark

import (
	"time"
)

// ImageConfig describes a database instance running from a container image.
// It is produced by the configuration UI and consumed read-only by a run.
type ImageConfig struct {
	Image    string `json:"image" yaml:"image" validate:"required"`
	DBType   string `json:"dbType" yaml:"dbType" validate:"required"`
	Driver   string `json:"driver" yaml:"driver" validate:"required"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Port     int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	DBName   string `json:"dbName,omitempty" yaml:"dbName,omitempty"`
	Env      Env    `json:"env,omitempty" yaml:"env,omitempty"`
}

// Clone returns a deep copy so a run never shares the env map with its caller.
func (c ImageConfig) Clone() ImageConfig {
	out := c
	if c.Env != nil {
		out.Env = make(Env, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	return out
}

// EnvList renders the environment as KEY=VALUE pairs.
func (c ImageConfig) EnvList() []string {
	return c.Env.List()
}

// Scenario is a named, ordered list of steps.
type Scenario struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Steps []Step `json:"steps" yaml:"steps" validate:"dive"`
}

// IncludedSteps returns the number of steps that will produce a result.
func (s Scenario) IncludedSteps() int {
	n := 0
	for _, step := range s.Steps {
		if step.Included {
			n++
		}
	}
	return n
}

// Operation identifies the kind of a scenario step.
type Operation string

const (
	OpCreateTable   Operation = "create_table"
	OpPopulateTable Operation = "populate_table"
	OpQuery         Operation = "query"

	// OpRunSummary marks the optional run-level result row.
	OpRunSummary Operation = "run_summary"
)

// ColumnType is the logical type of a generated column.
type ColumnType string

const (
	TypeInt   ColumnType = "int"
	TypeFloat ColumnType = "float"
	TypeBool  ColumnType = "bool"
	TypeDate  ColumnType = "date"
	TypeStr   ColumnType = "str"
)

// Column is one column of a table definition or generator spec.
type Column struct {
	Name       string     `json:"name" yaml:"name" validate:"required"`
	Type       ColumnType `json:"type" yaml:"type" validate:"required,oneof=int float bool date str"`
	PrimaryKey bool       `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
}

// CreateTablePayload carries either raw DDL or a column list.
type CreateTablePayload struct {
	Table   string   `json:"table,omitempty" yaml:"table,omitempty"`
	DDL     string   `json:"ddl,omitempty" yaml:"ddl,omitempty"`
	Columns []Column `json:"columns,omitempty" yaml:"columns,omitempty" validate:"dive"`
}

// PopulateTablePayload generates RowCount rows from Columns and batch-inserts them.
type PopulateTablePayload struct {
	Table     string   `json:"table" yaml:"table" validate:"required"`
	RowCount  int      `json:"rowCount" yaml:"rowCount" validate:"gte=0"`
	Columns   []Column `json:"columns" yaml:"columns" validate:"required,min=1,dive"`
	BatchSize int      `json:"batchSize,omitempty" yaml:"batchSize,omitempty" validate:"gte=0"`
}

// QueryPayload is a statement executed Repeat times over Concurrency workers.
type QueryPayload struct {
	Statement   string `json:"statement" yaml:"statement" validate:"required"`
	Repeat      int    `json:"repeat,omitempty" yaml:"repeat,omitempty" validate:"gte=0"`
	Concurrency int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty" validate:"gte=0"`
}

// ConnectionMode selects between provisioning and attaching.
type ConnectionMode string

const (
	NewContainer    ConnectionMode = "new_container"
	ConnectExisting ConnectionMode = "connect_existing"
)

// RunMode controls acquisition and teardown of the database container.
// RemoveAfterStop only takes effect together with StopOnCompletion.
type RunMode struct {
	ConnectionMode   ConnectionMode `json:"connectionMode" yaml:"connectionMode" validate:"required,oneof=new_container connect_existing"`
	StopOnCompletion bool           `json:"stopOnCompletion" yaml:"stopOnCompletion"`
	RemoveAfterStop  bool           `json:"removeAfterStop" yaml:"removeAfterStop"`
}

// ShouldRemove reports whether release removes the container.
func (m RunMode) ShouldRemove() bool {
	return m.StopOnCompletion && m.RemoveAfterStop
}

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// TestResult is one recorded outcome of an executed step.
type TestResult struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"runId"`
	StepIndex  int           `json:"stepIndex"`
	Timestamp  time.Time     `json:"timestamp"`
	DBImage    string        `json:"dbImage"`
	Operation  Operation     `json:"operation"`
	NumRecords int64         `json:"numRecords"`
	TestInfo   string        `json:"testInfo"`
	Status     string        `json:"status"`
	ExecTime   time.Duration `json:"execTime"`
	Memory     uint64        `json:"memory"`
	CPUPercent float64       `json:"cpuPercent"`
}

// Failed reports whether the step behind this result failed.
func (r TestResult) Failed() bool {
	return r.Status == StatusError
}
