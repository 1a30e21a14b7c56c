package resources

import (
	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

func cachorroCollection(store ports.StorageProvider) *collection[domain.Cachorro] {
	repo := store.Cachorros()
	return &collection[domain.Cachorro]{
		label: "cachorros",
		repo:  repo,
		sortFields: map[string]bool{
			"id":               true,
			"nome":             true,
			"dataDeNascimento": true,
			"localDeResgate":   true,
		},
		getID:      func(c *domain.Cachorro) int64 { return c.ID },
		setID:      func(c *domain.Cachorro, id int64) { c.ID = id },
		references: repo.CountAdocoes,

		msgNotFound:    "Cachorro não encontrado.",
		msgConflict:    "Não é possível deletar o cachorro. Existem %d adoção(ões) vinculada(s).",
		msgUnavailable: "O serviço de persistência de cachorros está temporariamente indisponível. Tente novamente mais tarde.",
	}
}

func mountCachorros(r chi.Router, store ports.StorageProvider, d deps) {
	c := cachorroCollection(store)
	byID := domain.Order{Field: "id", Direction: domain.SortAsc}

	mount(r, c, route{prefix: "/cachorros", listOrder: byID, searchOrder: byID}, d)
	mount(r, c, route{prefix: "/v1/cachorros", listOrder: byID, searchOrder: byID, versioned: true}, d)
}
