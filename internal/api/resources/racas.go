package resources

import (
	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

func racaCollection(store ports.StorageProvider) *collection[domain.Raca] {
	repo := store.Racas()
	return &collection[domain.Raca]{
		label:      "racas",
		repo:       repo,
		sortFields: map[string]bool{"id": true, "nome": true, "descricao": true},
		getID:      func(r *domain.Raca) int64 { return r.ID },
		setID:      func(r *domain.Raca, id int64) { r.ID = id },
		references: repo.CountAdocoes,

		msgNotFound:    "Raça não encontrada.",
		msgConflict:    "Não é possível deletar a raça. Existem %d adoção(ões) vinculada(s).",
		msgUnavailable: "O serviço de persistência de raças está temporariamente indisponível. Tente novamente mais tarde.",
	}
}

func mountRacas(r chi.Router, store ports.StorageProvider, d deps) {
	c := racaCollection(store)

	byID := domain.Order{Field: "id", Direction: domain.SortAsc}
	byName := domain.Order{Field: "nome", Direction: domain.SortAsc}

	mount(r, c, route{prefix: "/racas", listOrder: byID, searchOrder: byID}, d)
	mount(r, c, route{prefix: "/v2/racas", listOrder: byName, searchOrder: byName, versioned: true}, d)
}
