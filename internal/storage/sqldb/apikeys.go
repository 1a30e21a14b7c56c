package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acme/petadoption/internal/core/domain"
)

// APIKeyRepo implements ports.APIKeyStore.
type APIKeyRepo struct {
	s *Store
}

const apiKeyColumns = "id, key_value, owner_name, access_level, created_at, expires_at"

func (r *APIKeyRepo) FindByKeyValue(ctx context.Context, keyValue string) (*domain.APIKey, error) {
	query := r.s.dialect.Rebind(`SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_value = ?`)

	var key domain.APIKey
	err := r.s.db.GetContext(ctx, &key, query, keyValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api key: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

func (r *APIKeyRepo) List(ctx context.Context) ([]domain.APIKey, error) {
	keys := []domain.APIKey{}
	if err := r.s.db.SelectContext(ctx, &keys, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func (r *APIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	id, err := r.s.insert(ctx, r.s.db,
		`INSERT INTO api_keys (key_value, owner_name, access_level, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		key.KeyValue, key.OwnerName, key.AccessLevel, key.CreatedAt.UTC(), utcPtr(key.ExpiresAt))
	if err != nil {
		if r.s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("key value already exists: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	key.ID = id
	return nil
}

func (r *APIKeyRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	err := r.s.deleteByID(ctx, r.s.db, "api_keys", id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
