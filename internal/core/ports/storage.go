package ports

import (
	"context"

	"github.com/acme/petadoption/internal/core/domain"
)

// APIKeyStore persists API keys.
type APIKeyStore interface {
	// FindByKeyValue returns domain.ErrNotFound when no key matches.
	FindByKeyValue(ctx context.Context, keyValue string) (*domain.APIKey, error)

	// List returns every key ordered by id.
	List(ctx context.Context) ([]domain.APIKey, error)

	// Create inserts the key and sets its ID. A duplicate key value
	// returns an error wrapping domain.ErrConflict.
	Create(ctx context.Context, key *domain.APIKey) error

	// DeleteByID reports whether a row was removed.
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// Repository is the CRUD and search contract shared by the domain entities.
type Repository[T any] interface {
	// List returns all rows in the given order.
	List(ctx context.Context, order domain.Order) ([]T, error)

	// Get returns domain.ErrNotFound when the row is absent.
	Get(ctx context.Context, id int64) (*T, error)

	// Search returns one page of matches and the total number of matches.
	Search(ctx context.Context, q domain.SearchQuery) ([]T, int64, error)

	// Create inserts the entity and sets its ID.
	Create(ctx context.Context, entity *T) error

	// Update replaces the entity with the given id; domain.ErrNotFound when absent.
	Update(ctx context.Context, id int64, entity *T) error

	// Delete removes the row; domain.ErrNotFound when absent.
	Delete(ctx context.Context, id int64) error
}

// RacaRepository stores breeds.
type RacaRepository interface {
	Repository[domain.Raca]

	// CountAdocoes returns how many adoptions list the breed.
	CountAdocoes(ctx context.Context, racaID int64) (int64, error)
}

// CachorroRepository stores dogs.
type CachorroRepository interface {
	Repository[domain.Cachorro]

	// CountAdocoes returns how many adoptions reference the dog.
	CountAdocoes(ctx context.Context, cachorroID int64) (int64, error)
}

// AdocaoRepository stores adoptions. Create and Update persist the
// referenced dog id and breed ids; callers resolve them beforehand.
type AdocaoRepository interface {
	Repository[domain.Adocao]
}

// StorageProvider groups the repositories of one database.
type StorageProvider interface {
	APIKeys() APIKeyStore
	Racas() RacaRepository
	Cachorros() CachorroRepository
	Adocoes() AdocaoRepository

	Ping(ctx context.Context) error
	Close() error
}
