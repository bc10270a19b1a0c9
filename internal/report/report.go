// Package report renders test results as text tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"dockbench/pkg/benchmark"
)

var resultHeader = []string{"ID", "Time", "Image", "Operation", "Records", "Exec time", "Memory", "CPU %", "Status", "Info"}

const maxInfoWidth = 60

// RenderResults writes results as a table in the order given.
func RenderResults(w io.Writer, results []benchmark.TestResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(resultHeader)
	for _, r := range results {
		table.Append(Row(r))
	}
	table.Render()
}

// Row formats one result for display.
func Row(r benchmark.TestResult) []string {
	id := ""
	if r.ID > 0 {
		id = strconv.FormatInt(r.ID, 10)
	}
	return []string{
		id,
		r.Timestamp.Local().Format("2006-01-02 15:04:05"),
		r.DBImage,
		string(r.Operation),
		humanize.Comma(r.NumRecords),
		FormatDuration(r.ExecTime),
		humanize.IBytes(r.Memory),
		fmt.Sprintf("%.1f", r.CPUPercent),
		r.Status,
		truncate(r.TestInfo, maxInfoWidth),
	}
}

// FormatDuration rounds d to a readable precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.String()
	}
}

// Throughput returns records per second, or 0 when it cannot be computed.
func Throughput(r benchmark.TestResult) float64 {
	if r.ExecTime <= 0 || r.NumRecords <= 0 {
		return 0
	}
	return float64(r.NumRecords) / r.ExecTime.Seconds()
}

// RenderSummary writes per operation totals of results.
func RenderSummary(w io.Writer, results []benchmark.TestResult) {
	type agg struct {
		steps, failed int
		records       int64
		exec          time.Duration
		peakMemory    uint64
		peakCPU       float64
	}
	var order []benchmark.Operation
	byOp := map[benchmark.Operation]*agg{}
	for _, r := range results {
		if r.Operation == benchmark.OpRunSummary {
			continue
		}
		a, ok := byOp[r.Operation]
		if !ok {
			a = &agg{}
			byOp[r.Operation] = a
			order = append(order, r.Operation)
		}
		a.steps++
		if r.Failed() {
			a.failed++
		}
		a.records += r.NumRecords
		a.exec += r.ExecTime
		a.peakMemory = max(a.peakMemory, r.Memory)
		a.peakCPU = max(a.peakCPU, r.CPUPercent)
	}
	if len(order) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Operation", "Steps", "Failed", "Records", "Total time", "Records/s", "Peak memory", "Peak CPU %"})
	for _, op := range order {
		a := byOp[op]
		rate := 0.0
		if a.exec > 0 {
			rate = float64(a.records) / a.exec.Seconds()
		}
		table.Append([]string{
			string(op),
			strconv.Itoa(a.steps),
			strconv.Itoa(a.failed),
			humanize.Comma(a.records),
			FormatDuration(a.exec),
			humanize.CommafWithDigits(rate, 1),
			humanize.IBytes(a.peakMemory),
			fmt.Sprintf("%.1f", a.peakCPU),
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
