package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "dockbench-cli")
	if err != nil {
		panic(err)
	}
	binaryPath = filepath.Join(dir, "dockbench")

	buildCmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/dockbench")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		panic("failed to build CLI binary: " + err.Error() + "\n" + string(out))
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// runCLI executes the binary in a fresh directory with isolated logs and home.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"DOCKBENCH_LOG_DIR="+dir,
		"HOME="+dir,
	)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func assertContainsAll(t *testing.T, output string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(output, part) {
			t.Errorf("Expected output to contain %q, but got: %s", part, output)
		}
	}
}

const validScenario = `name: basic
steps:
  - included: true
    operation: create_table
    payload:
      table: users
      columns:
        - {name: id, type: int, primaryKey: true}
        - {name: name, type: str}
  - included: true
    operation: populate_table
    payload:
      table: users
      rowCount: 100
      columns:
        - {name: id, type: int, primaryKey: true}
        - {name: name, type: str}
`

func TestCLI_Run_ImageConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "basic.yaml", validScenario)

	output, err := runCLI(t, dir, "run", "--image", "missing.yaml", "--scenario", scenario)
	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}

	assertContainsAll(t, output,
		"Error:",
		"Failed to load image configuration",
		"Cause:",
		"image configuration file not found: missing.yaml",
		"Suggestion:",
		"--image",
	)

	if _, err := os.Stat(filepath.Join(dir, "dockbench.log")); os.IsNotExist(err) {
		t.Error("Expected dockbench.log to be created")
	}
}

func TestCLI_Run_UnsupportedDriver(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "mongo.yaml", "image: mongo:7\ndbType: mongodb\ndriver: mongo\nport: 27017\n")
	scenario := writeFile(t, dir, "basic.yaml", validScenario)

	output, err := runCLI(t, dir, "run", "-i", image, "-s", scenario)
	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}
	assertContainsAll(t, output, "No driver adapter for mongodb/mongo", "Supported combinations:", "postgresql/pgx")
}

func TestCLI_ScenarioValidate(t *testing.T) {
	dir := t.TempDir()

	valid := writeFile(t, dir, "basic.yaml", validScenario)
	output, err := runCLI(t, dir, "scenario", "validate", valid)
	if err != nil {
		t.Fatalf("Expected valid scenario, got %v: %s", err, output)
	}
	assertContainsAll(t, output, `Scenario "basic" is valid: 2 step(s), 2 included`, "table=users rows=100")

	invalid := writeFile(t, dir, "broken.json", `{"name": "broken", "steps": [{"included": true, "operation": "query", "payload": {"statement": ""}}]}`)
	output, err = runCLI(t, dir, "scenario", "validate", invalid)
	if err == nil {
		t.Error("Expected invalid scenario to fail")
	}
	assertContainsAll(t, output, "Error:", "Scenario is invalid", "step 1")
}

func TestCLI_ScenarioConvertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, dir, "basic.yaml", validScenario)
	target := filepath.Join(dir, "basic.json")

	if output, err := runCLI(t, dir, "scenario", "convert", source, target); err != nil {
		t.Fatalf("convert failed: %v: %s", err, output)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	assertContainsAll(t, string(data), `"operation": "populate_table"`, `"rowCount": 100`)

	back := filepath.Join(dir, "back.yaml")
	if output, err := runCLI(t, dir, "scenario", "convert", target, back); err != nil {
		t.Fatalf("convert back failed: %v: %s", err, output)
	}
	output, err := runCLI(t, dir, "scenario", "validate", back)
	if err != nil {
		t.Fatalf("round-tripped scenario is invalid: %v: %s", err, output)
	}
}

func TestCLI_ImageValidate(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "pg.json", `{"image": "postgres:16", "dbType": "pg", "driver": "psycopg2", "port": 5432}`)

	output, err := runCLI(t, dir, "image", "validate", image)
	if err != nil {
		t.Fatalf("Expected valid image configuration, got %v: %s", err, output)
	}
	assertContainsAll(t, output, "adapter postgresql/pq", "port 5432")
}

func TestCLI_ResultsOnEmptyStore(t *testing.T) {
	dir := t.TempDir()

	output, err := runCLI(t, dir, "results", "list")
	if err != nil {
		t.Fatalf("results list failed: %v: %s", err, output)
	}
	assertContainsAll(t, output, "No results.")

	output, err = runCLI(t, dir, "results", "export", "--format", "csv")
	if err != nil {
		t.Fatalf("results export failed: %v: %s", err, output)
	}
	assertContainsAll(t, output, "id,run_id,step_index")

	output, err = runCLI(t, dir, "results", "delete", "42")
	if err == nil {
		t.Error("Expected deleting a missing result to fail")
	}
	assertContainsAll(t, output, "Failed to delete result 42", "result not found")
}

func TestCLI_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dockbench.yaml", "logLevel: chatty\n")

	output, err := runCLI(t, dir, "drivers")
	if err == nil {
		t.Error("Expected invalid configuration to fail")
	}
	assertContainsAll(t, output, "Failed to load dockbench configuration", "LogLevel")
}

func TestCLI_Drivers(t *testing.T) {
	dir := t.TempDir()

	output, err := runCLI(t, dir, "drivers")
	if err != nil {
		t.Fatalf("drivers failed: %v: %s", err, output)
	}
	assertContainsAll(t, output, "mysql/mysql", "postgresql/pgx", "postgresql/pq", "redis/redis", "sqlite/sqlite3")
}

func TestCLI_InitWorkspace(t *testing.T) {
	dir := t.TempDir()

	output, err := runCLI(t, dir, "init", "--engine", "mysql", "--dry-run")
	if err != nil {
		t.Fatalf("Expected dry run to succeed, got %v: %s", err, output)
	}
	assertContainsAll(t, output, "DRY RUN: Would create file:", "images/mysql.yaml", "scenarios/basic.yaml")

	output, err = runCLI(t, dir, "init", "--engine", "mysql")
	if err != nil {
		t.Fatalf("Expected init to succeed, got %v: %s", err, output)
	}
	assertContainsAll(t, output, "Workspace ready")

	output, err = runCLI(t, dir, "scenario", "validate", "scenarios/basic.yaml")
	if err != nil {
		t.Fatalf("Scaffolded scenario should validate, got %v: %s", err, output)
	}
	output, err = runCLI(t, dir, "image", "validate", "images/mysql.yaml")
	if err != nil {
		t.Fatalf("Scaffolded image should validate, got %v: %s", err, output)
	}

	output, err = runCLI(t, dir, "init", "--engine", "mysql")
	if err == nil {
		t.Error("Expected second init to refuse overwriting")
	}
	assertContainsAll(t, output, "refusing to overwrite")
}

func TestCLI_RunEmbeddedSQLite(t *testing.T) {
	dir := t.TempDir()

	if output, err := runCLI(t, dir, "init", "--engine", "sqlite"); err != nil {
		t.Fatalf("Expected init to succeed, got %v: %s", err, output)
	}

	// no docker daemon is needed for an in-process engine
	output, err := runCLI(t, dir, "run", "-i", "images/sqlite.yaml", "-s", "scenarios/basic.yaml", "--stop", "--remove")
	if err != nil {
		t.Fatalf("Expected sqlite run to succeed, got %v: %s", err, output)
	}
	assertContainsAll(t, output, "Run completed: 3 step(s) recorded", "10,000 records")

	output, err = runCLI(t, dir, "results", "list", "--image", "keinos/sqlite3:latest")
	if err != nil {
		t.Fatalf("Expected results list to succeed, got %v: %s", err, output)
	}
	assertContainsAll(t, output, "create_table", "populate_table", "query")
}
