package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sampleConfig struct {
	HistoryLength int    `envconfig:"HISTORY_LENGTH" default:"15"`
	LogDir        string `envconfig:"LOG_DIR" default:"logs"`
}

type checkedConfig struct {
	Name string `envconfig:"NAME"`
}

var errNameRequired = errors.New("name is required")

func (c *checkedConfig) Validate() error {
	if c.Name == "" {
		return errNameRequired
	}
	return nil
}

func TestNewAppliesDefaults(t *testing.T) {
	conf, err := New[sampleConfig]("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.LogDir == "" {
		t.Fatal("expected default LOG_DIR")
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("HISTORY_LENGTH", "-1")

	conf, err := New[sampleConfig]("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.HistoryLength != -1 {
		t.Fatalf("HistoryLength = %d, want -1", conf.HistoryLength)
	}
}

func TestNewRunsValidator(t *testing.T) {
	t.Setenv("CHECKED_NAME", "")

	_, err := New[checkedConfig]("CHECKED")
	if !errors.Is(err, errNameRequired) {
		t.Fatalf("New() error = %v, want errNameRequired", err)
	}
}

func TestExportEnvironmentKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFG_TEST_KEEP=from-file\nCFG_TEST_NEW=fresh\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFG_TEST_KEEP", "from-env")
	t.Setenv("CFG_TEST_NEW", "")
	os.Unsetenv("CFG_TEST_NEW")

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	if got := os.Getenv("CFG_TEST_KEEP"); got != "from-env" {
		t.Fatalf("CFG_TEST_KEEP = %q, want from-env", got)
	}
	if got := os.Getenv("CFG_TEST_NEW"); got != "fresh" {
		t.Fatalf("CFG_TEST_NEW = %q, want fresh", got)
	}
}
