package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/retain")

	if cfg.BaseDir != "/data/retain" {
		t.Errorf("BaseDir = %q, want /data/retain", cfg.BaseDir)
	}
	if cfg.LogDir != filepath.Join("/data/retain", "log") {
		t.Errorf("LogDir = %q, want base dir log subdirectory", cfg.LogDir)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Storage.Type != "filesystem" {
		t.Errorf("Storage.Type = %q, want filesystem", cfg.Storage.Type)
	}
}

func TestManager_ReadWrite(t *testing.T) {
	t.Run("round-trips a config", func(t *testing.T) {
		cfg := NewConfig("/data/retain")
		cfg.Compliance.Cutoff = "2018-09-23T00:00:00Z"
		cfg.Compliance.AllowInUseExecute = true
		cfg.Checksum.SyncLimitBytes = 1024
		cfg.Reconcile.IntervalMinutes = 30
		cfg.Storage = StorageConfig{
			Type:     "s3",
			S3Bucket: "retain-archive",
			S3Region: "eu-west-1",
		}

		var buf bytes.Buffer
		m := &Manager{}
		if err := m.Write(&buf, cfg); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		got, err := m.Read(&buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}

		if got.BaseDir != cfg.BaseDir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
		}
		if got.Compliance.Cutoff != cfg.Compliance.Cutoff {
			t.Errorf("Compliance.Cutoff = %q, want %q", got.Compliance.Cutoff, cfg.Compliance.Cutoff)
		}
		if !got.Compliance.AllowInUseExecute {
			t.Error("AllowInUseExecute did not round-trip")
		}
		if got.Checksum.SyncLimitBytes != 1024 {
			t.Errorf("Checksum.SyncLimitBytes = %d, want 1024", got.Checksum.SyncLimitBytes)
		}
		if got.Storage.S3Bucket != "retain-archive" {
			t.Errorf("Storage.S3Bucket = %q, want retain-archive", got.Storage.S3Bucket)
		}
	})

	t.Run("rejects malformed TOML", func(t *testing.T) {
		m := &Manager{}
		if _, err := m.Read(strings.NewReader("base_dir = [unterminated")); err == nil {
			t.Error("Read() expected error for malformed TOML, got nil")
		}
	})
}

func TestCutoffTime(t *testing.T) {
	t.Run("empty means default", func(t *testing.T) {
		cfg := NewConfig("/data/retain")
		got, err := cfg.CutoffTime()
		if err != nil {
			t.Fatalf("CutoffTime() error = %v", err)
		}
		if !got.IsZero() {
			t.Errorf("CutoffTime() = %v, want zero time for default", got)
		}
	})

	t.Run("parses RFC 3339", func(t *testing.T) {
		cfg := NewConfig("/data/retain")
		cfg.Compliance.Cutoff = "2018-09-23T00:00:00Z"
		got, err := cfg.CutoffTime()
		if err != nil {
			t.Fatalf("CutoffTime() error = %v", err)
		}
		want := time.Date(2018, time.September, 23, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("CutoffTime() = %v, want %v", got, want)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		cfg := NewConfig("/data/retain")
		cfg.Compliance.Cutoff = "23/09/2018"
		if _, err := cfg.CutoffTime(); err == nil {
			t.Error("CutoffTime() expected error for non-RFC3339 value, got nil")
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates a new config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "subdir", "retain.toml")
		cfg := NewConfig("/data/retain")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != "/data/retain" {
			t.Errorf("BaseDir = %q, want /data/retain", got.BaseDir)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "retain.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"/keep\"\n"), 0644); err != nil {
			t.Fatalf("writing existing file: %v", err)
		}

		if err := Init(path, NewConfig("/data/retain")); err == nil {
			t.Error("Init() expected error for existing file, got nil")
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("ReadFromFile() expected error for missing file, got nil")
	}
}
