package driver

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockbench/pkg/benchmark"
)

func openRedis(t *testing.T) (*miniredis.Miniredis, Conn) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	conn, err := NewRedisAdapter().Connect(context.Background(), Endpoint{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.Ping(context.Background()))
	return srv, conn
}

func TestRedisConn_CreatePopulateQuery(t *testing.T) {
	ctx := context.Background()
	srv, conn := openRedis(t)

	srv.HSet("users:row:stale", "id", "1")

	_, err := conn.Execute(ctx, benchmark.NewCreateTableStep(benchmark.CreateTablePayload{Table: "users", Columns: userColumns}, true))
	require.NoError(t, err)
	assert.False(t, srv.Exists("users:row:stale"))
	assert.True(t, srv.Exists("users:schema"))

	out, err := conn.Execute(ctx, benchmark.NewPopulateTableStep(benchmark.PopulateTablePayload{
		Table: "users", RowCount: 250, Columns: userColumns, BatchSize: 100,
	}, true))
	require.NoError(t, err)
	assert.EqualValues(t, 250, out.RecordsAffected)
	assert.True(t, srv.Exists("users:row:250"))
	assert.Equal(t, "250", srv.HGet("users:row:250", "id"))

	keys, err := conn.Execute(ctx, benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "KEYS users:row:*"}, true))
	require.NoError(t, err)
	assert.EqualValues(t, 250, keys.RecordsAffected)

	missing, err := conn.Execute(ctx, benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "GET nothing"}, true))
	require.NoError(t, err)
	assert.Zero(t, missing.RecordsAffected)

	set, err := conn.Execute(ctx, benchmark.NewQueryStep(benchmark.QueryPayload{Statement: `SET greeting "hello world"`, Repeat: 3}, true))
	require.NoError(t, err)
	assert.EqualValues(t, 3, set.RecordsAffected)
	got, _ := srv.Get("greeting")
	assert.Equal(t, "hello world", got)
}

func TestRedisConn_CreateNeedsTable(t *testing.T) {
	_, conn := openRedis(t)

	_, err := conn.Execute(context.Background(), benchmark.NewCreateTableStep(benchmark.CreateTablePayload{DDL: "CREATE TABLE t (a INT)"}, true))
	assert.Error(t, err)
}

func TestRedisConn_UnknownCommand(t *testing.T) {
	_, conn := openRedis(t)

	_, err := conn.Execute(context.Background(), benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "NOSUCHCOMMAND x"}, true))
	assert.Error(t, err)
}

func TestRedisConnect_BadDatabase(t *testing.T) {
	_, err := NewRedisAdapter().Connect(context.Background(), Endpoint{Host: "localhost", Port: 6379, DBName: "zero"})
	assert.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	tokens, err := splitCommand(`HSET k field 'a b' "c d"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"HSET", "k", "field", "a b", "c d"}, tokens)

	tokens, err = splitCommand(`SET k ""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "k", ""}, tokens)

	_, err = splitCommand(`GET "open`)
	assert.Error(t, err)
}
