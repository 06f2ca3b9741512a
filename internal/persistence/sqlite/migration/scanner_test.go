package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScanner_ScanMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_index.sql":    {Data: []byte("CREATE INDEX idx ON t(a);")},
		"migrations/001_create_table.sql": {Data: []byte("-- Description: Create t\nCREATE TABLE t (a TEXT);\n")},
		"migrations/README.md":            {Data: []byte("ignored")},
	}

	migrations, err := NewScanner(fsys, "migrations").ScanMigrations()
	if err != nil {
		t.Fatalf("ScanMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Errorf("Expected sorted versions, got %s, %s", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Description != "Create t" {
		t.Errorf("Expected description from comment, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "add index" {
		t.Errorf("Expected description from filename, got %q", migrations[1].Description)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Errorf("Expected distinct checksums, got %q and %q", migrations[0].Checksum, migrations[1].Checksum)
	}
	if migrations[0].FilePath != "migrations/001_create_table.sql" {
		t.Errorf("unexpected file path %s", migrations[0].FilePath)
	}
}

func TestScanner_ScanMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "bad filename",
			fsys: fstest.MapFS{"m/create.sql": {Data: []byte("SELECT 1;")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "comments only",
			fsys: fstest.MapFS{"m/001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"m/001_a.sql": {Data: []byte("SELECT 1;")},
				"m/1_b.sql":   {Data: []byte("SELECT 2;")},
			},
			want: ErrDuplicateVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScanner(tt.fsys, "m").ScanMigrations()
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	sqlText := "-- header\nCREATE TABLE a (x TEXT);\n\n-- comment\nCREATE INDEX i ON a(x);\n"
	statements := splitStatements(sqlText)
	if len(statements) != 2 {
		t.Fatalf("Expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE INDEX i ON a(x)" {
		t.Errorf("unexpected statement %q", statements[1])
	}
}
