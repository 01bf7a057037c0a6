package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mirovand/licensehub-api/internal/domain/apikey"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"go.uber.org/zap"
)

type apiKeyDocument struct {
	Keys map[uuid.UUID]*apikey.APIKey `json:"keys"`
}

type APIKeyRepository struct {
	mu     sync.RWMutex
	path   string
	keys   map[uuid.UUID]*apikey.APIKey
	logger *zap.Logger
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func NewAPIKeyRepository(path string, logger *zap.Logger) (*APIKeyRepository, error) {
	r := &APIKeyRepository{
		path:   path,
		keys:   make(map[uuid.UUID]*apikey.APIKey),
		logger: logger.Named("APIKeyRepository"),
	}

	var doc apiKeyDocument
	err := ReadJSON(path, &doc)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("No API key state file found, starting with empty state", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to load api key state: %w", err)
	default:
		if doc.Keys != nil {
			r.keys = doc.Keys
		}
	}

	return r, nil
}

func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.keys {
		if key.Prefix == prefix && key.IsEnabled {
			keyCopy := *key
			return &keyCopy, nil
		}
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	keyCopy := *key
	r.keys[key.ID] = &keyCopy

	if err := r.flushLocked(); err != nil {
		delete(r.keys, key.ID)
		return uuid.Nil, err
	}

	r.logger.Info("API key created", zap.String("id", key.ID.String()), zap.String("prefix", key.Prefix))
	return key.ID, nil
}

func (r *APIKeyRepository) List(ctx context.Context) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]*apikey.APIKey, 0, len(r.keys))
	for _, key := range r.keys {
		keyCopy := *key
		keys = append(keys, &keyCopy)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (r *APIKeyRepository) Disable(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}

	prev := key.IsEnabled
	key.IsEnabled = false
	if err := r.flushLocked(); err != nil {
		key.IsEnabled = prev
		return err
	}
	return nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}

	prev := key.LastUsedAt
	key.LastUsedAt = &lastUsed
	if err := r.flushLocked(); err != nil {
		key.LastUsedAt = prev
		return err
	}
	return nil
}

func (r *APIKeyRepository) flushLocked() error {
	doc := apiKeyDocument{Keys: r.keys}
	if err := WriteJSON(r.path, &doc); err != nil {
		r.logger.Error("Failed to flush api key state", zap.Error(err))
		return fmt.Errorf("%w: %v", ierr.ErrStorage, err)
	}
	return nil
}
