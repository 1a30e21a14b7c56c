package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/acme/petadoption/internal/core/domain"
)

// AdocaoRepo implements ports.AdocaoRepository.
type AdocaoRepo struct {
	s *Store
}

var adocaoColumns = columnMap{
	"id":              "id",
	"dataSolicitacao": "data_solicitacao",
	"justificativa":   "justificativa",
	"status":          "status",
}

const adocaoSelect = `SELECT id, data_solicitacao, justificativa, status, cachorro_id FROM adocoes`

type adocaoRow struct {
	ID              int64         `db:"id"`
	DataSolicitacao domain.Date   `db:"data_solicitacao"`
	Justificativa   string        `db:"justificativa"`
	Status          string        `db:"status"`
	CachorroID      sql.NullInt64 `db:"cachorro_id"`
}

type adocaoRacaRow struct {
	AdocaoID  int64  `db:"adocao_id"`
	ID        int64  `db:"id"`
	Nome      string `db:"nome"`
	Descricao string `db:"descricao"`
}

// hydrate loads the dogs and breeds of rows. All result sets are read
// fully before the next query so a single-connection pool never nests.
func (r *AdocaoRepo) hydrate(ctx context.Context, q sqlx.QueryerContext, rows []adocaoRow) ([]domain.Adocao, error) {
	out := make([]domain.Adocao, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]int64, len(rows))
	var cachorroIDs []int64
	for i, row := range rows {
		ids[i] = row.ID
		if row.CachorroID.Valid {
			cachorroIDs = append(cachorroIDs, row.CachorroID.Int64)
		}
	}

	cachorros, err := r.s.cachorros.getMany(ctx, q, cachorroIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load cachorros: %w", err)
	}

	query, args, err := sqlx.In(`SELECT ar.adocao_id, r.id, r.nome, COALESCE(r.descricao, '') AS descricao
FROM adocao_racas ar JOIN racas r ON r.id = ar.raca_id
WHERE ar.adocao_id IN (?) ORDER BY ar.adocao_id, r.id`, ids)
	if err != nil {
		return nil, err
	}
	var racaRows []adocaoRacaRow
	if err := sqlx.SelectContext(ctx, q, &racaRows, r.s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load racas: %w", err)
	}
	racas := make(map[int64][]domain.Raca)
	for _, rr := range racaRows {
		racas[rr.AdocaoID] = append(racas[rr.AdocaoID], domain.Raca{ID: rr.ID, Nome: rr.Nome, Descricao: rr.Descricao})
	}

	for i, row := range rows {
		a := domain.Adocao{
			ID:              row.ID,
			DataSolicitacao: row.DataSolicitacao,
			Justificativa:   row.Justificativa,
			Status:          row.Status,
			Racas:           racas[row.ID],
		}
		if a.Racas == nil {
			a.Racas = []domain.Raca{}
		}
		if row.CachorroID.Valid {
			if c, ok := cachorros[row.CachorroID.Int64]; ok {
				a.Cachorro = &c
			}
		}
		out[i] = a
	}
	return out, nil
}

func (r *AdocaoRepo) List(ctx context.Context, order domain.Order) ([]domain.Adocao, error) {
	var rows []adocaoRow
	if err := r.s.db.SelectContext(ctx, &rows, adocaoSelect+adocaoColumns.orderBy(order)); err != nil {
		return nil, fmt.Errorf("failed to list adocoes: %w", err)
	}
	return r.hydrate(ctx, r.s.db, rows)
}

func (r *AdocaoRepo) Get(ctx context.Context, id int64) (*domain.Adocao, error) {
	var row adocaoRow
	if err := r.s.db.GetContext(ctx, &row, r.s.dialect.Rebind(adocaoSelect+` WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "adocao", id)
	}
	out, err := r.hydrate(ctx, r.s.db, []adocaoRow{row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// Search matches an exact request date when the text is a YYYY-MM-DD date,
// otherwise a substring of status or justificativa.
func (r *AdocaoRepo) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Adocao, int64, error) {
	var where string
	var args []any
	if d, err := domain.ParseDate(strings.TrimSpace(q.Text)); err == nil {
		where, args = " WHERE data_solicitacao = ?", []any{d}
	} else {
		where, args = textFilter(q.Text, "status", "justificativa")
	}

	total, err := r.s.count(ctx, `SELECT COUNT(*) FROM adocoes`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count adocoes: %w", err)
	}

	limit, pageArgs := page(q, args)
	var rows []adocaoRow
	query := r.s.dialect.Rebind(adocaoSelect + where + adocaoColumns.orderBy(q.Order) + limit)
	if err := r.s.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to search adocoes: %w", err)
	}

	out, err := r.hydrate(ctx, r.s.db, rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func cachorroID(a *domain.Adocao) any {
	if a.Cachorro == nil || a.Cachorro.ID == 0 {
		return nil
	}
	return a.Cachorro.ID
}

func (r *AdocaoRepo) insertRacas(ctx context.Context, tx *sqlx.Tx, adocaoID int64, racas []domain.Raca) error {
	seen := make(map[int64]bool, len(racas))
	stmt := r.s.dialect.Rebind(`INSERT INTO adocao_racas (adocao_id, raca_id) VALUES (?, ?)`)
	for _, raca := range racas {
		if raca.ID == 0 || seen[raca.ID] {
			continue
		}
		seen[raca.ID] = true
		if _, err := tx.ExecContext(ctx, stmt, adocaoID, raca.ID); err != nil {
			return fmt.Errorf("failed to link raca %d: %w", raca.ID, err)
		}
	}
	return nil
}

func (r *AdocaoRepo) Create(ctx context.Context, a *domain.Adocao) error {
	var id int64
	err := r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = r.s.insert(ctx, tx, `INSERT INTO adocoes (data_solicitacao, justificativa, status, cachorro_id) VALUES (?, ?, ?, ?)`,
			a.DataSolicitacao, a.Justificativa, a.Status, cachorroID(a))
		if err != nil {
			return fmt.Errorf("failed to create adocao: %w", err)
		}
		return r.insertRacas(ctx, tx, id, a.Racas)
	})
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *AdocaoRepo) Update(ctx context.Context, id int64, a *domain.Adocao) error {
	err := r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := r.s.exists(ctx, tx, "adocoes", id)
		if err != nil {
			return fmt.Errorf("failed to update adocao: %w", err)
		}
		if !ok {
			return fmt.Errorf("adocao %d: %w", id, domain.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, r.s.dialect.Rebind(`UPDATE adocoes SET data_solicitacao = ?, justificativa = ?, status = ?, cachorro_id = ? WHERE id = ?`),
			a.DataSolicitacao, a.Justificativa, a.Status, cachorroID(a), id)
		if err != nil {
			return fmt.Errorf("failed to update adocao: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.s.dialect.Rebind(`DELETE FROM adocao_racas WHERE adocao_id = ?`), id); err != nil {
			return fmt.Errorf("failed to unlink racas: %w", err)
		}
		return r.insertRacas(ctx, tx, id, a.Racas)
	})
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *AdocaoRepo) Delete(ctx context.Context, id int64) error {
	return r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, r.s.dialect.Rebind(`DELETE FROM adocao_racas WHERE adocao_id = ?`), id); err != nil {
			return fmt.Errorf("failed to unlink racas: %w", err)
		}
		return r.s.deleteByID(ctx, tx, "adocoes", id)
	})
}
