// Package scaffolder writes a starter benchmark workspace: a dockbench.yaml,
// an image configuration for the chosen engine and a basic scenario.
package scaffolder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dockbench/pkg/benchmark"
)

// Options controls what Scaffold writes and where.
type Options struct {
	Destination string
	Engine      string
	DryRun      bool
	// Force overwrites files that already exist.
	Force bool
	Out   io.Writer
}

// File is one file of a scaffolded workspace.
type File struct {
	Path string
	Data []byte
}

var presets = map[string]benchmark.ImageConfig{
	"postgres": {
		Image:    "postgres:16",
		DBType:   "postgresql",
		Driver:   "pgx",
		User:     "bench",
		Password: "bench",
		Port:     5432,
		DBName:   "bench",
		Env: benchmark.Env{
			"POSTGRES_USER":     "bench",
			"POSTGRES_PASSWORD": "bench",
			"POSTGRES_DB":       "bench",
		},
	},
	"mysql": {
		Image:    "mysql:8.4",
		DBType:   "mysql",
		Driver:   "mysql",
		User:     "root",
		Password: "bench",
		Port:     3306,
		DBName:   "bench",
		Env: benchmark.Env{
			"MYSQL_ROOT_PASSWORD": "bench",
			"MYSQL_DATABASE":      "bench",
		},
	},
	"redis": {
		Image:  "redis:7",
		DBType: "redis",
		Driver: "redis",
		Port:   6379,
		DBName: "0",
	},
	// sqlite runs in process on a local file; the image only labels results
	"sqlite": {
		Image:  "keinos/sqlite3:latest",
		DBType: "sqlite",
		Driver: "sqlite3",
		DBName: "bench.db",
	},
}

// Engines lists the engines a workspace can be scaffolded for.
func Engines() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Preset returns the starter image configuration of an engine.
func Preset(engine string) (benchmark.ImageConfig, error) {
	cfg, ok := presets[strings.ToLower(engine)]
	if !ok {
		return benchmark.ImageConfig{}, fmt.Errorf("unknown engine %q (available: %s)", engine, strings.Join(Engines(), ", "))
	}
	return cfg.Clone(), nil
}

const configTemplate = `# dockbench settings. Every key can be overridden with a DOCKBENCH_ variable,
# e.g. DOCKBENCH_STORE_PATH.
logLevel: info
docker:
  host: ""        # empty uses DOCKER_HOST or the local socket
  timeout: 0s
store:
  path: dockbench.db
runner:
  stepTimeout: 5m
  readinessTimeout: 60s
  stopTimeout: 10s
  summaryRow: false
metrics:
  sampleInterval: 250ms
export:
  endpoint: ""
  bucket: ""
  useSSL: true
`

var sampleColumns = []benchmark.Column{
	{Name: "id", Type: benchmark.TypeInt, PrimaryKey: true},
	{Name: "name", Type: benchmark.TypeStr},
	{Name: "score", Type: benchmark.TypeFloat},
	{Name: "active", Type: benchmark.TypeBool},
	{Name: "created", Type: benchmark.TypeDate},
}

// BasicScenario returns the starter scenario for an image configuration.
func BasicScenario(cfg benchmark.ImageConfig) benchmark.Scenario {
	steps := []benchmark.Step{
		benchmark.NewCreateTableStep(benchmark.CreateTablePayload{Table: "users", Columns: sampleColumns}, true),
		benchmark.NewPopulateTableStep(benchmark.PopulateTablePayload{Table: "users", RowCount: 10000, Columns: sampleColumns, BatchSize: 500}, true),
	}
	if cfg.DBType == "redis" {
		steps = append(steps,
			benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "HGETALL users:row:1", Repeat: 100, Concurrency: 4}, true),
			benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "DBSIZE"}, false),
		)
	} else {
		steps = append(steps,
			benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "SELECT COUNT(*) FROM users", Repeat: 10, Concurrency: 4}, true),
			benchmark.NewQueryStep(benchmark.QueryPayload{Statement: "SELECT * FROM users WHERE score > 500000"}, false),
		)
	}
	return benchmark.Scenario{Name: "basic", Steps: steps}
}

// Plan returns the files Scaffold would write.
func Plan(opts Options) ([]File, error) {
	cfg, err := Preset(opts.Engine)
	if err != nil {
		return nil, err
	}
	engine := strings.ToLower(opts.Engine)

	image, err := benchmark.Encode(cfg, benchmark.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image configuration: %w", err)
	}
	scenario, err := benchmark.MarshalScenario(BasicScenario(cfg), benchmark.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}

	return []File{
		{Path: filepath.Join(opts.Destination, "dockbench.yaml"), Data: []byte(configTemplate)},
		{Path: filepath.Join(opts.Destination, "images", engine+".yaml"), Data: image},
		{Path: filepath.Join(opts.Destination, "scenarios", "basic.yaml"), Data: scenario},
	}, nil
}

// Scaffold writes the workspace and returns the written paths. Existing files
// are left alone unless Force is set.
func Scaffold(opts Options) ([]string, error) {
	if opts.Destination == "" {
		opts.Destination = "."
	}
	if err := validatePath(opts.Destination); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	files, err := Plan(opts)
	if err != nil {
		return nil, err
	}

	if !opts.Force {
		var existing []string
		for _, f := range files {
			if _, err := os.Stat(f.Path); err == nil {
				existing = append(existing, f.Path)
			}
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("refusing to overwrite existing files: %s (use --force)", strings.Join(existing, ", "))
		}
	}

	if opts.DryRun {
		return performDryRun(opts.Out, files), nil
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := writeFile(f); err != nil {
			return written, err
		}
		written = append(written, f.Path)
	}
	return written, nil
}

// performDryRun prints what would be written without touching the disk.
func performDryRun(out io.Writer, files []File) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		fmt.Fprintf(out, "DRY RUN: Would create file: %s\n", f.Path)
		paths = append(paths, f.Path)
	}
	return paths
}

// validatePath ensures the path is safe and doesn't contain directory traversal sequences
func validatePath(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}
	return nil
}

func writeFile(f File) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
	}
	// image configurations carry credentials
	if err := os.WriteFile(f.Path, f.Data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	return nil
}
