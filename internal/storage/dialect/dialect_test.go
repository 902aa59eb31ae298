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
		{"sqlite3", "sqlite", "sqlite", false},
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
			if d.Name() != tt.wantName || d.DriverName() != tt.wantDriver {
				t.Errorf("got %s/%s, want %s/%s", d.Name(), d.DriverName(), tt.wantName, tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM verification_logs WHERE ip_address = ? AND is_bot = ? LIMIT ? OFFSET ?"

	sqlite, _ := New(SQLite)
	if got := sqlite.Rebind(query); got != query {
		t.Errorf("sqlite Rebind() = %q", got)
	}

	pg, _ := New(Postgres)
	want := "SELECT * FROM verification_logs WHERE ip_address = $1 AND is_bot = $2 LIMIT $3 OFFSET $4"
	if got := pg.Rebind(query); got != want {
		t.Errorf("postgres Rebind() = %q, want %q", got, want)
	}
}

func TestInsertIgnoreClause(t *testing.T) {
	sqlite, _ := New(SQLite)
	if got := sqlite.InsertIgnoreClause("submission_id"); got != "ON CONFLICT(submission_id) DO NOTHING" {
		t.Errorf("sqlite InsertIgnoreClause() = %q", got)
	}
	pg, _ := New(Postgres)
	if got := pg.InsertIgnoreClause("submission_id"); got != "ON CONFLICT (submission_id) DO NOTHING" {
		t.Errorf("postgres InsertIgnoreClause() = %q", got)
	}
}

func TestDialect_Types(t *testing.T) {
	tests := []struct {
		dialect              DialectType
		boolean, ts, jsonDoc string
	}{
		{SQLite, "INTEGER", "TIMESTAMP", "TEXT"},
		{Postgres, "BOOLEAN", "TIMESTAMP WITH TIME ZONE", "JSONB"},
	}
	for _, tt := range tests {
		d, _ := New(tt.dialect)
		if d.BooleanType() != tt.boolean || d.TimestampType() != tt.ts || d.JSONType() != tt.jsonDoc {
			t.Errorf("%s types = %s/%s/%s", tt.dialect, d.BooleanType(), d.TimestampType(), d.JSONType())
		}
	}
}

func TestDialect_PragmaStatements(t *testing.T) {
	sqlite, _ := New(SQLite)
	if len(sqlite.PragmaStatements()) == 0 {
		t.Error("sqlite should enable WAL")
	}
	pg, _ := New(Postgres)
	if len(pg.PragmaStatements()) != 0 {
		t.Error("postgres has no pragmas")
	}
}
