package driver

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"dockbench/pkg/benchmark"
)

const (
	maxRandomInt = 1_000_000
	strLength    = 10
)

// Generator produces typed random rows for a column list. Primary key
// columns get values unique across the whole populate step.
type Generator struct {
	columns []benchmark.Column
	faker   *gofakeit.Faker
	today   time.Time
}

// NewGenerator returns a generator for columns. A zero seed picks a random one.
func NewGenerator(columns []benchmark.Column, rowCount int, seed uint64) (*Generator, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("generator needs at least one column")
	}
	for _, c := range columns {
		switch c.Type {
		case benchmark.TypeInt, benchmark.TypeFloat, benchmark.TypeDate, benchmark.TypeStr:
		case benchmark.TypeBool:
			if c.PrimaryKey && rowCount > 2 {
				return nil, fmt.Errorf("column %s: a bool primary key cannot hold %d unique values", c.Name, rowCount)
			}
		default:
			return nil, fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
		}
	}

	now := time.Now().UTC()
	return &Generator{
		columns: columns,
		faker:   gofakeit.New(seed),
		today:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}, nil
}

// Columns returns the column names in order.
func (g *Generator) Columns() []string {
	names := make([]string, len(g.columns))
	for i, c := range g.columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the values for row i (0-based).
func (g *Generator) Row(i int) []any {
	row := make([]any, len(g.columns))
	for j, c := range g.columns {
		row[j] = g.value(c, i)
	}
	return row
}

// Rows returns n consecutive rows starting at row start.
func (g *Generator) Rows(start, n int) [][]any {
	rows := make([][]any, n)
	for k := range rows {
		rows[k] = g.Row(start + k)
	}
	return rows
}

func (g *Generator) value(c benchmark.Column, i int) any {
	switch c.Type {
	case benchmark.TypeInt:
		if c.PrimaryKey {
			return int64(i + 1)
		}
		return int64(g.faker.IntRange(0, maxRandomInt))
	case benchmark.TypeFloat:
		if c.PrimaryKey {
			return float64(i) + g.faker.Float64Range(0, 0.999)
		}
		return g.faker.Float64Range(0, maxRandomInt)
	case benchmark.TypeBool:
		if c.PrimaryKey {
			return i%2 == 1
		}
		return g.faker.Bool()
	case benchmark.TypeDate:
		if c.PrimaryKey {
			return g.today.AddDate(0, 0, i)
		}
		return g.today.AddDate(0, 0, -g.faker.IntRange(0, 365))
	default:
		if c.PrimaryKey {
			return fmt.Sprintf("str_%d", i)
		}
		return g.faker.LetterN(strLength)
	}
}
