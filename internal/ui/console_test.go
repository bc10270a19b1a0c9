package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsole_ColoursOnlyStyledOutput(t *testing.T) {
	console := &Console{useColors: true}

	tests := []struct {
		style   ConsoleStyle
		colored bool
	}{
		{StyleNormal, false},
		{StyleError, true},
		{StyleWarning, true},
		{StyleSuccess, true},
		{StyleInfo, true},
	}

	for _, tt := range tests {
		got := console.formatMessage(tt.style, "[1/2] rows=100")
		if !tt.colored {
			assert.Equal(t, "[1/2] rows=100", got)
			continue
		}
		assert.True(t, strings.HasPrefix(got, "\033["), "style %d", tt.style)
		assert.True(t, strings.HasSuffix(got, colorReset), "style %d", tt.style)
	}

	plain := &Console{}
	assert.Equal(t, "table=users", plain.formatMessage(StyleError, "table=users"))
}

func TestConsole_FormatErrorMessage(t *testing.T) {
	console := NewPlainConsole(&bytes.Buffer{}, &bytes.Buffer{})

	tests := []struct {
		name                       string
		context, cause, suggestion string
		want                       string
	}{
		{
			name:       "all parts",
			context:    "Failed to provision postgres:16",
			cause:      "port 5432 is already allocated",
			suggestion: "Stop the other container or use --existing",
			want:       "Failed to provision postgres:16\nCause: port 5432 is already allocated\nSuggestion: Stop the other container or use --existing",
		},
		{name: "context only", context: "No matching container", want: "No matching container"},
		{name: "cause only", cause: "timeout", want: "Cause: timeout"},
		{name: "without cause", context: "Result store failed", suggestion: "Check store.path", want: "Result store failed\nSuggestion: Check store.path"},
		{name: "empty", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, console.FormatErrorMessage(tt.context, tt.cause, tt.suggestion))
		})
	}
}

func TestConsole_PrintToWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	console := NewPlainConsole(&out, &errOut)

	console.PrintInfo("provisioning postgres:16")
	console.PrintError("container failed to start")
	console.PrintWarning("failed to stop container")

	assert.Equal(t, "provisioning postgres:16\n", out.String())
	assert.Equal(t, "Error: container failed to start\nWarning: failed to stop container\n", errOut.String())
}

func TestConsole_PrintStepStarted(t *testing.T) {
	var out bytes.Buffer
	console := NewPlainConsole(&out, &bytes.Buffer{})

	console.PrintStepStarted(1, 3, "table=users rows=100")

	assert.Equal(t, "[1/3] table=users rows=100\n", out.String())
}

func TestConsole_PrintStepFinished(t *testing.T) {
	var out, errOut bytes.Buffer
	console := NewPlainConsole(&out, &errOut)

	console.PrintStepFinished(2, 3, 12000, 1500*time.Millisecond, 64<<20, 37.25, "")
	assert.Equal(t, "[2/3] 12,000 records in 1.5s, peak 64 MiB, 37.2% cpu\n", out.String())

	console.PrintStepFinished(3, 3, 0, time.Millisecond, 0, 0, "syntax error")
	assert.True(t, strings.HasPrefix(errOut.String(), "Warning: [3/3] 0 records"), errOut.String())
	assert.True(t, strings.HasSuffix(errOut.String(), ": syntax error\n"), errOut.String())
}
