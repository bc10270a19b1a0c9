package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dockbench/pkg/benchmark"
)

// redisAdapter maps tables onto hashes: <table>:schema holds the column
// list and each row lives in <table>:row:<key>.
type redisAdapter struct{}

// NewRedisAdapter returns the go-redis based adapter. A numeric DBName
// selects the logical database.
func NewRedisAdapter() Adapter {
	return redisAdapter{}
}

func (redisAdapter) Name() string { return "redis/redis" }

func (redisAdapter) Connect(_ context.Context, ep Endpoint) (Conn, error) {
	db := 0
	if ep.DBName != "" {
		n, err := strconv.Atoi(ep.DBName)
		if err != nil {
			return nil, fmt.Errorf("redis database must be a number, got %q", ep.DBName)
		}
		db = n
	}

	client := redis.NewClient(&redis.Options{
		Addr:     ep.Addr(),
		Username: ep.User,
		Password: ep.Password,
		DB:       db,
	})
	return &redisConn{client: client}, nil
}

type redisConn struct {
	client *redis.Client
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

func (c *redisConn) Execute(ctx context.Context, step benchmark.Step) (Outcome, error) {
	return execute(ctx, step, c)
}

func schemaKey(table string) string { return table + ":schema" }

func rowKey(table, id string) string { return table + ":row:" + id }

func (c *redisConn) createTable(ctx context.Context, p benchmark.CreateTablePayload) error {
	if p.Table == "" {
		return errors.New("redis create_table needs a table name")
	}

	if err := c.dropRows(ctx, p.Table); err != nil {
		return fmt.Errorf("drop rows of %s: %w", p.Table, err)
	}

	schema, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, schemaKey(p.Table), schema, 0).Err()
}

func (c *redisConn) dropRows(ctx context.Context, table string) error {
	iter := c.client.Scan(ctx, 0, rowKey(table, "*"), 1000).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 1000 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (c *redisConn) populateTable(ctx context.Context, p benchmark.PopulateTablePayload) (int64, error) {
	gen, err := NewGenerator(p.Columns, p.RowCount, 0)
	if err != nil {
		return 0, err
	}

	columns := gen.Columns()
	keyColumn := -1
	for i, col := range p.Columns {
		if col.PrimaryKey {
			if keyColumn >= 0 {
				keyColumn = -1
				break
			}
			keyColumn = i
		}
	}

	size := batchSize(p)
	var committed int64
	for start := 0; start < p.RowCount; start += size {
		n := min(size, p.RowCount-start)
		rows := gen.Rows(start, n)

		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, row := range rows {
				id := strconv.Itoa(start + k + 1)
				if keyColumn >= 0 {
					id = formatValue(row[keyColumn])
				}
				fields := make([]any, 0, 2*len(row))
				for j, v := range row {
					fields = append(fields, columns[j], formatValue(v))
				}
				pipe.HSet(ctx, rowKey(p.Table, id), fields...)
			}
			return nil
		})
		if err != nil {
			return committed, fmt.Errorf("write batch at row %d: %w", start, err)
		}
		committed += int64(n)
	}
	return committed, nil
}

// query runs a redis-cli style command line.
func (c *redisConn) query(ctx context.Context, statement string) (int64, error) {
	tokens, err := splitCommand(statement)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, errors.New("empty redis command")
	}

	args := make([]any, len(tokens))
	for i, t := range tokens {
		args[i] = t
	}

	res, err := c.client.Do(ctx, args...).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	switch v := res.(type) {
	case []any:
		return int64(len(v)), nil
	case map[any]any:
		return int64(len(v)), nil
	default:
		return 1, nil
	}
}

// splitCommand splits on whitespace, honouring single and double quotes.
func splitCommand(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.DateOnly)
	default:
		return fmt.Sprint(v)
	}
}
