package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acme/petadoption/internal/core/domain"
)

// RacaRepo implements ports.RacaRepository.
type RacaRepo struct {
	s *Store
}

var racaColumns = columnMap{
	"id":        "id",
	"nome":      "nome",
	"descricao": "descricao",
}

const racaSelect = `SELECT id, nome, COALESCE(descricao, '') AS descricao FROM racas`

func (r *RacaRepo) List(ctx context.Context, order domain.Order) ([]domain.Raca, error) {
	racas := []domain.Raca{}
	if err := r.s.db.SelectContext(ctx, &racas, racaSelect+racaColumns.orderBy(order)); err != nil {
		return nil, fmt.Errorf("failed to list racas: %w", err)
	}
	return racas, nil
}

func (r *RacaRepo) Get(ctx context.Context, id int64) (*domain.Raca, error) {
	var raca domain.Raca
	if err := r.s.db.GetContext(ctx, &raca, r.s.dialect.Rebind(racaSelect+` WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "raca", id)
	}
	return &raca, nil
}

func (r *RacaRepo) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Raca, int64, error) {
	where, args := textFilter(q.Text, "nome", "descricao")

	total, err := r.s.count(ctx, `SELECT COUNT(*) FROM racas`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count racas: %w", err)
	}

	limit, pageArgs := page(q, args)
	racas := []domain.Raca{}
	query := r.s.dialect.Rebind(racaSelect + where + racaColumns.orderBy(q.Order) + limit)
	if err := r.s.db.SelectContext(ctx, &racas, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to search racas: %w", err)
	}
	return racas, total, nil
}

func (r *RacaRepo) Create(ctx context.Context, raca *domain.Raca) error {
	id, err := r.s.insert(ctx, r.s.db, `INSERT INTO racas (nome, descricao) VALUES (?, ?)`, raca.Nome, raca.Descricao)
	if err != nil {
		return fmt.Errorf("failed to create raca: %w", err)
	}
	raca.ID = id
	return nil
}

func (r *RacaRepo) Update(ctx context.Context, id int64, raca *domain.Raca) error {
	err := r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := r.s.exists(ctx, tx, "racas", id)
		if err != nil {
			return fmt.Errorf("failed to update raca: %w", err)
		}
		if !ok {
			return fmt.Errorf("raca %d: %w", id, domain.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, r.s.dialect.Rebind(`UPDATE racas SET nome = ?, descricao = ? WHERE id = ?`),
			raca.Nome, raca.Descricao, id)
		if err != nil {
			return fmt.Errorf("failed to update raca: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	raca.ID = id
	return nil
}

func (r *RacaRepo) Delete(ctx context.Context, id int64) error {
	return r.s.deleteByID(ctx, r.s.db, "racas", id)
}

func (r *RacaRepo) CountAdocoes(ctx context.Context, racaID int64) (int64, error) {
	n, err := r.s.count(ctx, `SELECT COUNT(*) FROM adocao_racas WHERE raca_id = ?`, racaID)
	if err != nil {
		return 0, fmt.Errorf("failed to count adocoes of raca: %w", err)
	}
	return n, nil
}
