package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for retain.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Storage    StorageConfig    `toml:"storage"`
	Compliance ComplianceConfig `toml:"compliance"`
	Checksum   ChecksumConfig   `toml:"checksum"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Evidence   EvidenceConfig   `toml:"evidence"`
}

// DatabaseConfig selects the record store.
// Tagged union: Type determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StorageConfig selects where source locators resolve to.
// Tagged union: Type determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "filesystem" or "s3"

	// Filesystem-specific (Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific (Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// ComplianceConfig holds the cutoff instant and the gate relaxation.
type ComplianceConfig struct {
	// Cutoff in RFC 3339; empty means the built-in default cutoff.
	Cutoff string `toml:"cutoff,omitempty"`

	// AllowInUseExecute permits archiving files with active references.
	AllowInUseExecute bool `toml:"allow_in_use_execute"`
}

// ChecksumConfig tunes the integrity engine and its work queue.
type ChecksumConfig struct {
	SyncLimitBytes int64 `toml:"sync_limit_bytes"` // 0 means the 50 MiB default
	LeaseSeconds   int   `toml:"lease_seconds"`    // 0 means 300s
	PollSeconds    int   `toml:"poll_seconds"`     // 0 means 5s
	TimeoutSeconds int   `toml:"timeout_seconds"`  // per-file hash timeout, 0 means 60s
}

// ReconcileConfig tunes the periodic sweep.
type ReconcileConfig struct {
	IntervalMinutes int    `toml:"interval_minutes"` // 0 means 60m
	MetricsListen   string `toml:"metrics_listen,omitempty"`
}

// EvidenceConfig configures evidence bundle encryption.
type EvidenceConfig struct {
	// RecipientPath points at a file of age recipients. Empty means bundles
	// are written in plaintext unless a passphrase is requested.
	RecipientPath string `toml:"recipient_path,omitempty"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Storage: StorageConfig{
			Type: "filesystem",
			Root: "/",
		},
	}
}

// CutoffTime parses the configured cutoff. A zero time means "use default".
func (c *Config) CutoffTime() (time.Time, error) {
	if c.Compliance.Cutoff == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Compliance.Cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing compliance cutoff %q: %w", c.Compliance.Cutoff, err)
	}
	return t, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
