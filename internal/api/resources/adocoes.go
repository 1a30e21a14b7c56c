package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

const msgPersistenceUnavailable = "O serviço de persistência está temporariamente indisponível. Tente novamente mais tarde."

func adocaoCollection(store ports.StorageProvider) *collection[domain.Adocao] {
	return &collection[domain.Adocao]{
		label: "adocoes",
		repo:  store.Adocoes(),
		sortFields: map[string]bool{
			"id":              true,
			"dataSolicitacao": true,
			"justificativa":   true,
			"status":          true,
		},
		getID:   func(a *domain.Adocao) int64 { return a.ID },
		setID:   func(a *domain.Adocao, id int64) { a.ID = id },
		resolve: adocaoResolver(store.Cachorros(), store.Racas()),

		msgNotFound:    "Adoção não encontrada.",
		msgUnavailable: msgPersistenceUnavailable,
	}
}

// adocaoResolver replaces the dog and breeds referenced by id with the
// stored rows. References without an id are dropped; unknown ids are a
// client error.
func adocaoResolver(cachorros ports.CachorroRepository, racas ports.RacaRepository) func(context.Context, *domain.Adocao) error {
	return func(ctx context.Context, a *domain.Adocao) error {
		if a.Cachorro != nil && a.Cachorro.ID != 0 {
			c, err := cachorros.Get(ctx, a.Cachorro.ID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInvalidRequest(fmt.Sprintf("Cachorro com id %d não existe", a.Cachorro.ID))
			}
			if err != nil {
				return err
			}
			a.Cachorro = c
		} else {
			a.Cachorro = nil
		}

		resolved := make([]domain.Raca, 0, len(a.Racas))
		seen := make(map[int64]bool, len(a.Racas))
		for _, ref := range a.Racas {
			if ref.ID == 0 || seen[ref.ID] {
				continue
			}
			raca, err := racas.Get(ctx, ref.ID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInvalidRequest(fmt.Sprintf("Raça com id %d não existe", ref.ID))
			}
			if err != nil {
				return err
			}
			seen[ref.ID] = true
			resolved = append(resolved, *raca)
		}
		a.Racas = resolved
		return nil
	}
}

func mountAdocoes(r chi.Router, store ports.StorageProvider, d deps) {
	c := adocaoCollection(store)
	byID := domain.Order{Field: "id", Direction: domain.SortAsc}
	newest := domain.Order{Field: "dataSolicitacao", Direction: domain.SortDesc}

	mount(r, c, route{prefix: "/adocoes", listOrder: byID, searchOrder: byID, versioned: true}, d)
	mount(r, c, route{prefix: "/v2/adocoes", listOrder: newest, searchOrder: newest, versioned: true}, d)
}
