package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000004_scores.up.sql", "000004_scores.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	up, down, err := createMigration(dir, "add_index", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(up) != "000005_add_index.up.sql" || filepath.Base(down) != "000005_add_index.down.sql" {
		t.Errorf("created %s and %s", up, down)
	}
	if _, err := os.Stat(down); err != nil {
		t.Errorf("down file missing: %v", err)
	}
}
