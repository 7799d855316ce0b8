package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBackupFileKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showers.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backup, err := BackupFile(path, false)
	if err != nil {
		t.Fatalf("BackupFile error: %v", err)
	}
	if backup != path+BackupSuffix {
		t.Fatalf("backup path = %q", backup)
	}
	if VersionOf(backup) != "2.0.1" || VersionOf(path) != "2.0.1" {
		t.Fatalf("backup or original missing")
	}
}

func TestBackupFileDeleteOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showers.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := BackupFile(path, true); err != nil {
		t.Fatalf("BackupFile error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original should be removed, stat err = %v", err)
	}
	if VersionOf(path+BackupSuffix) != "2.0.1" {
		t.Fatalf("backup missing")
	}
}

func TestBackupFileMissingOriginal(t *testing.T) {
	backup, err := BackupFile(filepath.Join(t.TempDir(), "none.json"), false)
	if err != nil || backup != "" {
		t.Fatalf("BackupFile(missing) = %q, %v", backup, err)
	}
}

func TestEnsureFileWritesDefaultOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showers.json")
	wrote, err := EnsureFile(path)
	if err != nil || !wrote {
		t.Fatalf("EnsureFile = %v, %v", wrote, err)
	}
	if VersionOf(path) == "" {
		t.Fatalf("default catalog not written")
	}
	wrote, err = EnsureFile(path)
	if err != nil || wrote {
		t.Fatalf("second EnsureFile = %v, %v", wrote, err)
	}
}
