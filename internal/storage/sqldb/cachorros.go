package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acme/petadoption/internal/core/domain"
)

// CachorroRepo implements ports.CachorroRepository.
type CachorroRepo struct {
	s *Store
}

var cachorroColumns = columnMap{
	"id":               "id",
	"nome":             "nome",
	"dataDeNascimento": "data_de_nascimento",
	"localDeResgate":   "local_de_resgate",
}

const cachorroSelect = `SELECT id, nome, data_de_nascimento, COALESCE(local_de_resgate, '') AS local_de_resgate,
ficha_descricao_historia, ficha_temperamento_principal, ficha_habilidades_especiais FROM cachorros`

// cachorroRow is the flattened cachorros row; the ficha is present when
// any of its columns is non-NULL.
type cachorroRow struct {
	ID                    int64          `db:"id"`
	Nome                  string         `db:"nome"`
	DataDeNascimento      *domain.Date   `db:"data_de_nascimento"`
	LocalDeResgate        string         `db:"local_de_resgate"`
	DescricaoHistoria     sql.NullString `db:"ficha_descricao_historia"`
	TemperamentoPrincipal sql.NullString `db:"ficha_temperamento_principal"`
	HabilidadesEspeciais  sql.NullString `db:"ficha_habilidades_especiais"`
}

func (row cachorroRow) toDomain() domain.Cachorro {
	c := domain.Cachorro{
		ID:               row.ID,
		Nome:             row.Nome,
		DataDeNascimento: row.DataDeNascimento,
		LocalDeResgate:   row.LocalDeResgate,
	}
	if row.DescricaoHistoria.Valid || row.TemperamentoPrincipal.Valid || row.HabilidadesEspeciais.Valid {
		c.Ficha = &domain.FichaCachorro{
			DescricaoHistoria:     row.DescricaoHistoria.String,
			TemperamentoPrincipal: row.TemperamentoPrincipal.String,
			HabilidadesEspeciais:  row.HabilidadesEspeciais.String,
		}
	}
	return c
}

func fichaArgs(f *domain.FichaCachorro) []any {
	if f == nil {
		return []any{nil, nil, nil}
	}
	return []any{f.DescricaoHistoria, f.TemperamentoPrincipal, f.HabilidadesEspeciais}
}

func (r *CachorroRepo) selectRows(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]domain.Cachorro, error) {
	var rows []cachorroRow
	if err := sqlx.SelectContext(ctx, q, &rows, r.s.dialect.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]domain.Cachorro, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *CachorroRepo) List(ctx context.Context, order domain.Order) ([]domain.Cachorro, error) {
	out, err := r.selectRows(ctx, r.s.db, cachorroSelect+cachorroColumns.orderBy(order))
	if err != nil {
		return nil, fmt.Errorf("failed to list cachorros: %w", err)
	}
	return out, nil
}

func (r *CachorroRepo) Get(ctx context.Context, id int64) (*domain.Cachorro, error) {
	var row cachorroRow
	if err := r.s.db.GetContext(ctx, &row, r.s.dialect.Rebind(cachorroSelect+` WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "cachorro", id)
	}
	c := row.toDomain()
	return &c, nil
}

// getMany returns the dogs with the given ids keyed by id.
func (r *CachorroRepo) getMany(ctx context.Context, q sqlx.QueryerContext, ids []int64) (map[int64]domain.Cachorro, error) {
	out := make(map[int64]domain.Cachorro, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(cachorroSelect+` WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	cachorros, err := r.selectRows(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	for _, c := range cachorros {
		out[c.ID] = c
	}
	return out, nil
}

func (r *CachorroRepo) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Cachorro, int64, error) {
	where, args := textFilter(q.Text, "nome", "local_de_resgate")

	total, err := r.s.count(ctx, `SELECT COUNT(*) FROM cachorros`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count cachorros: %w", err)
	}

	limit, pageArgs := page(q, args)
	out, err := r.selectRows(ctx, r.s.db, cachorroSelect+where+cachorroColumns.orderBy(q.Order)+limit, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search cachorros: %w", err)
	}
	return out, total, nil
}

func (r *CachorroRepo) Create(ctx context.Context, c *domain.Cachorro) error {
	args := append([]any{c.Nome, c.DataDeNascimento, c.LocalDeResgate}, fichaArgs(c.Ficha)...)
	id, err := r.s.insert(ctx, r.s.db, `INSERT INTO cachorros (nome, data_de_nascimento, local_de_resgate,
ficha_descricao_historia, ficha_temperamento_principal, ficha_habilidades_especiais) VALUES (?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to create cachorro: %w", err)
	}
	c.ID = id
	return nil
}

func (r *CachorroRepo) Update(ctx context.Context, id int64, c *domain.Cachorro) error {
	err := r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := r.s.exists(ctx, tx, "cachorros", id)
		if err != nil {
			return fmt.Errorf("failed to update cachorro: %w", err)
		}
		if !ok {
			return fmt.Errorf("cachorro %d: %w", id, domain.ErrNotFound)
		}
		args := append([]any{c.Nome, c.DataDeNascimento, c.LocalDeResgate}, fichaArgs(c.Ficha)...)
		args = append(args, id)
		_, err = tx.ExecContext(ctx, r.s.dialect.Rebind(`UPDATE cachorros SET nome = ?, data_de_nascimento = ?, local_de_resgate = ?,
ficha_descricao_historia = ?, ficha_temperamento_principal = ?, ficha_habilidades_especiais = ? WHERE id = ?`), args...)
		if err != nil {
			return fmt.Errorf("failed to update cachorro: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *CachorroRepo) Delete(ctx context.Context, id int64) error {
	return r.s.deleteByID(ctx, r.s.db, "cachorros", id)
}

func (r *CachorroRepo) CountAdocoes(ctx context.Context, cachorroID int64) (int64, error) {
	n, err := r.s.count(ctx, `SELECT COUNT(*) FROM adocoes WHERE cachorro_id = ?`, cachorroID)
	if err != nil {
		return 0, fmt.Errorf("failed to count adocoes of cachorro: %w", err)
	}
	return n, nil
}
