// Package export serializes test results and publishes them to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dockbench/pkg/benchmark"
)

// Format is an export serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv or json, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (use csv or json)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

var csvHeader = []string{
	"id", "run_id", "step_index", "timestamp", "db_image", "operation",
	"num_records", "test_info", "status", "exec_time_ms", "memory_bytes", "cpu_percent",
}

// WriteCSV writes results with a header row. Execution time is in
// milliseconds with microsecond precision.
func WriteCSV(w io.Writer, results []benchmark.TestResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.RunID,
			strconv.Itoa(r.StepIndex),
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.DBImage,
			string(r.Operation),
			strconv.FormatInt(r.NumRecords, 10),
			r.TestInfo,
			r.Status,
			strconv.FormatFloat(float64(r.ExecTime.Microseconds())/1000, 'f', 3, 64),
			strconv.FormatUint(r.Memory, 10),
			strconv.FormatFloat(r.CPUPercent, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []benchmark.TestResult) error {
	if results == nil {
		results = []benchmark.TestResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// Write serializes results in the given format.
func Write(w io.Writer, format Format, results []benchmark.TestResult) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatJSON:
		return WriteJSON(w, results)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// Uploader stores an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// ObjectKey names an export object, e.g. results/20260301T120000Z.csv.
func ObjectKey(prefix string, format Format, at time.Time) string {
	name := at.UTC().Format("20060102T150405Z") + "." + string(format)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Publish serializes results and uploads them, returning the object key.
func Publish(ctx context.Context, up Uploader, prefix string, format Format, results []benchmark.TestResult) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, format, results); err != nil {
		return "", fmt.Errorf("failed to serialize results: %w", err)
	}

	key := ObjectKey(prefix, format, time.Now())
	if err := up.Upload(ctx, key, &buf, int64(buf.Len()), format.ContentType()); err != nil {
		return "", err
	}
	return key, nil
}
