package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one operation of a scenario. Exactly one payload is set and it must
// match Operation.
type Step struct {
	Included  bool
	Operation Operation

	CreateTable   *CreateTablePayload
	PopulateTable *PopulateTablePayload
	Query         *QueryPayload
}

// NewCreateTableStep builds a create_table step.
func NewCreateTableStep(p CreateTablePayload, included bool) Step {
	return Step{Included: included, Operation: OpCreateTable, CreateTable: &p}
}

// NewPopulateTableStep builds a populate_table step.
func NewPopulateTableStep(p PopulateTablePayload, included bool) Step {
	return Step{Included: included, Operation: OpPopulateTable, PopulateTable: &p}
}

// NewQueryStep builds a query step.
func NewQueryStep(p QueryPayload, included bool) Step {
	return Step{Included: included, Operation: OpQuery, Query: &p}
}

// ParseOperation normalizes an operation name. The short names used by older
// scenario exports (create, insert) are accepted as well.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create_table", "create":
		return OpCreateTable, nil
	case "populate_table", "populate", "insert":
		return OpPopulateTable, nil
	case "query":
		return OpQuery, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// Payload returns the payload matching the step's operation, or nil.
func (s Step) Payload() any {
	switch s.Operation {
	case OpCreateTable:
		if s.CreateTable != nil {
			return s.CreateTable
		}
	case OpPopulateTable:
		if s.PopulateTable != nil {
			return s.PopulateTable
		}
	case OpQuery:
		if s.Query != nil {
			return s.Query
		}
	}
	return nil
}

// Validate checks that exactly the payload for Operation is present and well formed.
func (s Step) Validate() error {
	set := 0
	for _, present := range []bool{s.CreateTable != nil, s.PopulateTable != nil, s.Query != nil} {
		if present {
			set++
		}
	}
	if set != 1 || s.Payload() == nil {
		return fmt.Errorf("step %q must carry exactly one %s payload", s.Operation, s.Operation)
	}

	switch s.Operation {
	case OpCreateTable:
		p := s.CreateTable
		if strings.TrimSpace(p.DDL) == "" && len(p.Columns) == 0 {
			return fmt.Errorf("create_table needs either ddl or columns")
		}
		if len(p.Columns) > 0 && p.Table == "" {
			return fmt.Errorf("create_table with columns needs a table name")
		}
	case OpPopulateTable:
		if s.PopulateTable.RowCount < 0 {
			return fmt.Errorf("populate_table rowCount must not be negative")
		}
	case OpQuery:
		if strings.TrimSpace(s.Query.Statement) == "" {
			return fmt.Errorf("query statement is empty")
		}
	}
	return nil
}

// Describe renders a short human readable summary used as result info.
func (s Step) Describe() string {
	switch s.Operation {
	case OpCreateTable:
		if p := s.CreateTable; p != nil {
			if len(p.Columns) == 0 {
				return fmt.Sprintf("DDL: %s", oneLine(p.DDL))
			}
			cols := make([]string, 0, len(p.Columns))
			for _, c := range p.Columns {
				col := fmt.Sprintf("%s %s", c.Name, c.Type)
				if c.PrimaryKey {
					col += " (PK)"
				}
				cols = append(cols, col)
			}
			return fmt.Sprintf("table=%s columns=[%s]", p.Table, strings.Join(cols, ", "))
		}
	case OpPopulateTable:
		if p := s.PopulateTable; p != nil {
			return fmt.Sprintf("table=%s rows=%d", p.Table, p.RowCount)
		}
	case OpQuery:
		if p := s.Query; p != nil {
			info := fmt.Sprintf("query: %s", oneLine(p.Statement))
			if p.Repeat > 1 || p.Concurrency > 1 {
				info += fmt.Sprintf(" (repeat=%d concurrency=%d)", p.Repeat, p.Concurrency)
			}
			return info
		}
	}
	return string(s.Operation)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type jsonStep struct {
	Included  bool            `json:"included"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the step as {included, operation, payload}.
func (s Step) MarshalJSON() ([]byte, error) {
	payload := s.Payload()
	if payload == nil {
		return nil, fmt.Errorf("step %q has no matching payload", s.Operation)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonStep{Included: s.Included, Operation: string(s.Operation), Payload: raw})
}

// UnmarshalJSON decodes a step record; payload fields foreign to the
// operation are rejected.
func (s *Step) UnmarshalJSON(data []byte) error {
	var rec jsonStep
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	op, err := ParseOperation(rec.Operation)
	if err != nil {
		return err
	}

	step := Step{Included: rec.Included, Operation: op}
	target := step.allocate()
	if len(rec.Payload) > 0 && string(rec.Payload) != "null" {
		dec := json.NewDecoder(bytes.NewReader(rec.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("%s payload: %w", op, err)
		}
	}

	*s = step
	return nil
}

type yamlStep struct {
	Included  bool      `yaml:"included"`
	Operation string    `yaml:"operation"`
	Payload   yaml.Node `yaml:"payload"`
}

// MarshalYAML encodes the step with the same record shape as JSON.
func (s Step) MarshalYAML() (interface{}, error) {
	payload := s.Payload()
	if payload == nil {
		return nil, fmt.Errorf("step %q has no matching payload", s.Operation)
	}
	return struct {
		Included  bool   `yaml:"included"`
		Operation string `yaml:"operation"`
		Payload   any    `yaml:"payload"`
	}{s.Included, string(s.Operation), payload}, nil
}

// UnmarshalYAML decodes a step record with strict payload fields.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var rec yamlStep
	if err := value.Decode(&rec); err != nil {
		return err
	}
	op, err := ParseOperation(rec.Operation)
	if err != nil {
		return err
	}

	step := Step{Included: rec.Included, Operation: op}
	target := step.allocate()
	if rec.Payload.Kind != 0 {
		raw, err := yaml.Marshal(&rec.Payload)
		if err != nil {
			return err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("%s payload: %w", op, err)
		}
	}

	*s = step
	return nil
}

// allocate sets an empty payload for the step's operation and returns it.
func (s *Step) allocate() any {
	switch s.Operation {
	case OpCreateTable:
		s.CreateTable = &CreateTablePayload{}
		return s.CreateTable
	case OpPopulateTable:
		s.PopulateTable = &PopulateTablePayload{}
		return s.PopulateTable
	default:
		s.Query = &QueryPayload{}
		return s.Query
	}
}
