package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockbench/pkg/benchmark"
)

func results() []benchmark.TestResult {
	return []benchmark.TestResult{
		{
			ID: 7, RunID: "run-1", StepIndex: 1,
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC),
			DBImage:   "mysql:8", Operation: benchmark.OpPopulateTable,
			NumRecords: 100, TestInfo: `table=users, rows="100"`, Status: benchmark.StatusOK,
			ExecTime: 1234567 * time.Nanosecond, Memory: 1 << 20, CPUPercent: 42.5,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])

	row := records[1]
	assert.Equal(t, "7", row[0])
	assert.Equal(t, "2026-03-01T12:00:00.0000005Z", row[3])
	assert.Equal(t, `table=users, rows="100"`, row[7], "quoting survives")
	assert.Equal(t, "1.234", row[9])
	assert.Equal(t, "1048576", row[10])
	assert.Equal(t, "42.50", row[11])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, results()))
	var decoded []benchmark.TestResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	want := results()[0]
	assert.True(t, want.Timestamp.Equal(decoded[0].Timestamp))
	decoded[0].Timestamp = want.Timestamp
	assert.Equal(t, want, decoded[0])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "results/20260301T110000Z.csv", ObjectKey("/results/", FormatCSV, at))
	assert.Equal(t, "20260301T110000Z.json", ObjectKey("", FormatJSON, at))
}

type recordingUploader struct {
	key, contentType string
	body             []byte
	size             int64
	err              error
}

func (u *recordingUploader) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if u.err != nil {
		return u.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	u.key, u.body, u.size, u.contentType = key, data, size, contentType
	return nil
}

func TestPublish(t *testing.T) {
	up := &recordingUploader{}
	key, err := Publish(context.Background(), up, "exports", FormatCSV, results())
	require.NoError(t, err)

	assert.Equal(t, key, up.key)
	assert.True(t, strings.HasPrefix(key, "exports/"))
	assert.True(t, strings.HasSuffix(key, ".csv"))
	assert.Equal(t, "text/csv", up.contentType)
	assert.Equal(t, int64(len(up.body)), up.size)
	assert.Contains(t, string(up.body), "mysql:8")
}

func TestPublish_UploadError(t *testing.T) {
	up := &recordingUploader{err: errors.New("access denied")}
	_, err := Publish(context.Background(), up, "", FormatJSON, results())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3Uploader(t *testing.T) {
	_, err := NewS3Uploader(S3Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	up, err := NewS3Uploader(S3Config{Endpoint: "localhost:9000", Bucket: "bench", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000/bench/k.csv", up.Location("k.csv"))
}
