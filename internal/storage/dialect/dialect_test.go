package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestNew(t *testing.T) {
	tests := []struct {
		dialectType DialectType
		wantDriver  string
		wantErr     bool
	}{
		{SQLite, "sqlite", false},
		{Postgres, "pgx", false},
		{MySQL, "mysql", false},
		{DialectType("oracle"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialectType), func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantErr    bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"pgx", "postgres", false},
		{"mysql", "mysql", false},
		{"mssql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT id FROM racas WHERE LOWER(nome) LIKE ? OR LOWER(descricao) LIKE ? LIMIT ? OFFSET ?"

	tests := []struct {
		dialect DialectType
		want    string
	}{
		{SQLite, query},
		{MySQL, query},
		{Postgres, "SELECT id FROM racas WHERE LOWER(nome) LIKE $1 OR LOWER(descricao) LIKE $2 LIMIT $3 OFFSET $4"},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			d, _ := New(tt.dialect)
			if got := d.Rebind(query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialect_Types(t *testing.T) {
	tests := []struct {
		dialect       DialectType
		autoIncrement string
		bigInt        string
		timestamp     string
		returning     bool
		pragmas       int
	}{
		{SQLite, "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "TIMESTAMP", true, 4},
		{Postgres, "BIGSERIAL PRIMARY KEY", "BIGINT", "TIMESTAMP WITH TIME ZONE", true, 0},
		{MySQL, "BIGINT AUTO_INCREMENT PRIMARY KEY", "BIGINT", "DATETIME(6)", false, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			d, _ := New(tt.dialect)
			if got := d.AutoIncrementClause(); got != tt.autoIncrement {
				t.Errorf("AutoIncrementClause() = %q, want %q", got, tt.autoIncrement)
			}
			if got := d.BigIntType(); got != tt.bigInt {
				t.Errorf("BigIntType() = %q, want %q", got, tt.bigInt)
			}
			if got := d.TimestampType(); got != tt.timestamp {
				t.Errorf("TimestampType() = %q, want %q", got, tt.timestamp)
			}
			if got := d.SupportsReturning(); got != tt.returning {
				t.Errorf("SupportsReturning() = %v, want %v", got, tt.returning)
			}
			if got := len(d.PragmaStatements()); got != tt.pragmas {
				t.Errorf("len(PragmaStatements()) = %d, want %d", got, tt.pragmas)
			}
		})
	}
}

func TestDialect_IsUniqueViolation(t *testing.T) {
	pg, _ := New(Postgres)
	my, _ := New(MySQL)
	lite, _ := New(SQLite)

	pgUnique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	pgOther := &pgconn.PgError{Code: "23503"}
	myUnique := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})
	plain := errors.New("boom")

	tests := []struct {
		name string
		d    Dialect
		err  error
		want bool
	}{
		{"postgres unique", pg, pgUnique, true},
		{"postgres fk", pg, pgOther, false},
		{"mysql duplicate", my, myUnique, true},
		{"mysql plain", my, plain, false},
		{"sqlite plain", lite, plain, false},
		{"sqlite foreign error type", lite, pgUnique, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
