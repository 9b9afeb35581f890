package dialect

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"mysql", DialectType("mysql"), "", true},
		{"unknown", DialectType("unknown"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", "sqlite", false},
		{"SQLite3", "sqlite", "sqlite", false},
		{"postgres", "postgres", "pgx", false},
		{"pgx", "postgres", "pgx", false},
		{"unknown", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
			if d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestSQLiteDialect_Rebind(t *testing.T) {
	d := &sqliteDialect{}
	query := "SELECT * FROM version_records WHERE content_ref = ? AND version_id = ?"
	if got := d.Rebind(query); got != query {
		t.Errorf("Rebind() = %v, want %v", got, query)
	}
}

func TestPostgresDialect_Rebind(t *testing.T) {
	d := &postgresDialect{}
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM version_blobs WHERE version_id = ?", "SELECT * FROM version_blobs WHERE version_id = $1"},
		{"DELETE FROM version_records WHERE version_id IN (?, ?)", "DELETE FROM version_records WHERE version_id IN ($1, $2)"},
		{"INSERT INTO version_blobs VALUES (?, ?, ?)", "INSERT INTO version_blobs VALUES ($1, $2, $3)"},
		{"SELECT * FROM version_records", "SELECT * FROM version_records"},
	}

	for _, tt := range tests {
		if got := d.Rebind(tt.query); got != tt.want {
			t.Errorf("Rebind(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestDialectTypes(t *testing.T) {
	sqlite := &sqliteDialect{}
	postgres := &postgresDialect{}

	if sqlite.BigIntType() != "INTEGER" {
		t.Errorf("sqlite BigIntType() = %v, want INTEGER", sqlite.BigIntType())
	}
	if postgres.BigIntType() != "BIGINT" {
		t.Errorf("postgres BigIntType() = %v, want BIGINT", postgres.BigIntType())
	}
	if len(sqlite.PragmaStatements()) == 0 {
		t.Error("sqlite PragmaStatements() is empty")
	}
	if postgres.PragmaStatements() != nil {
		t.Errorf("postgres PragmaStatements() = %v, want nil", postgres.PragmaStatements())
	}
}
