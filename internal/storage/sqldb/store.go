package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/storage/dialect"
)

// Store is a SQL implementation of ports.StorageProvider that supports
// multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect

	apiKeys   *APIKeyRepo
	racas     *RacaRepo
	cachorros *CachorroRepo
	adocoes   *AdocaoRepo
}

var _ ports.StorageProvider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres, mysql
	DSN    string // Data source name / connection string

	// MaxOpenConns caps the pool; zero keeps the driver default.
	// SQLite always uses a single connection.
	MaxOpenConns int
}

// New opens the database, applies dialect pragmas and creates the schema.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	if d.Name() == string(dialect.SQLite) {
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection, and SQLite serializes writers anyway.
	if d.Name() == string(dialect.SQLite) {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	store.apiKeys = &APIKeyRepo{s: store}
	store.racas = &RacaRepo{s: store}
	store.cachorros = &CachorroRepo{s: store}
	store.adocoes = &AdocaoRepo{s: store}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// ensureSQLiteDir creates the parent directory of a file-path DSN.
// URI and in-memory DSNs are left alone.
func ensureSQLiteDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) APIKeys() ports.APIKeyStore { return s.apiKeys }
func (s *Store) Racas() ports.RacaRepository { return s.racas }
func (s *Store) Cachorros() ports.CachorroRepository { return s.cachorros }
func (s *Store) Adocoes() ports.AdocaoRepository { return s.adocoes }
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	d := s.dialect
	statements := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
id ` + d.AutoIncrementClause() + `,
key_value VARCHAR(64) NOT NULL,
owner_name VARCHAR(100) NOT NULL,
access_level VARCHAR(20) NOT NULL,
created_at ` + d.TimestampType() + ` NOT NULL,
expires_at ` + d.TimestampType() + ` NULL
)`,
		`CREATE TABLE IF NOT EXISTS racas (
id ` + d.AutoIncrementClause() + `,
nome VARCHAR(100) NOT NULL,
descricao VARCHAR(500)
)`,
		`CREATE TABLE IF NOT EXISTS cachorros (
id ` + d.AutoIncrementClause() + `,
nome VARCHAR(100) NOT NULL,
data_de_nascimento VARCHAR(10),
local_de_resgate VARCHAR(200),
ficha_descricao_historia VARCHAR(1000),
ficha_temperamento_principal VARCHAR(100),
ficha_habilidades_especiais VARCHAR(500)
)`,
		`CREATE TABLE IF NOT EXISTS adocoes (
id ` + d.AutoIncrementClause() + `,
data_solicitacao VARCHAR(10) NOT NULL,
justificativa VARCHAR(500) NOT NULL,
status VARCHAR(50) NOT NULL,
cachorro_id ` + d.BigIntType() + ` NULL,
FOREIGN KEY (cachorro_id) REFERENCES cachorros(id)
)`,
		`CREATE TABLE IF NOT EXISTS adocao_racas (
adocao_id ` + d.BigIntType() + ` NOT NULL,
raca_id ` + d.BigIntType() + ` NOT NULL,
PRIMARY KEY (adocao_id, raca_id),
FOREIGN KEY (adocao_id) REFERENCES adocoes(id) ON DELETE CASCADE,
FOREIGN KEY (raca_id) REFERENCES racas(id)
)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	indexes := []struct {
		name  string
		table string
		ddl   string
	}{
		{"uk_api_keys_key_value", "api_keys", "CREATE UNIQUE INDEX uk_api_keys_key_value ON api_keys(key_value)"},
		{"idx_adocoes_cachorro", "adocoes", "CREATE INDEX idx_adocoes_cachorro ON adocoes(cachorro_id)"},
		{"idx_adocao_racas_raca", "adocao_racas", "CREATE INDEX idx_adocao_racas_raca ON adocao_racas(raca_id)"},
	}

	for _, idx := range indexes {
		if err := s.createIndex(idx.name, idx.table, idx.ddl); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

// createIndex is idempotent on every dialect. MySQL has no
// CREATE INDEX IF NOT EXISTS, so the statement is only issued when the
// index is missing there.
func (s *Store) createIndex(name, table, ddl string) error {
	if s.dialect.Name() != string(dialect.MySQL) {
		_, err := s.db.Exec(strings.Replace(ddl, "INDEX ", "INDEX IF NOT EXISTS ", 1))
		return err
	}

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`, table, name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = s.db.Exec(ddl)
	return err
}

// insert runs an INSERT and returns the generated id, using RETURNING
// where the dialect has it.
func (s *Store) insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	if s.dialect.SupportsReturning() {
		var id int64
		err := q.QueryRowxContext(ctx, s.dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	res, err := q.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// exists reports whether table has a row with id.
func (s *Store) exists(ctx context.Context, q sqlx.QueryerContext, table string, id int64) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, s.dialect.Rebind("SELECT COUNT(*) FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// deleteByID removes the row and maps "no row" to domain.ErrNotFound.
func (s *Store) deleteByID(ctx context.Context, q sqlx.ExecerContext, table string, id int64) error {
	res, err := q.ExecContext(ctx, s.dialect.Rebind("DELETE FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

// count runs a COUNT(*) query.
func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.dialect.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// inTx runs fn in a transaction that is committed when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
