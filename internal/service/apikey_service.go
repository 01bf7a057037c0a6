package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mirovand/licensehub-api/internal/domain/apikey"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/util"
	"go.uber.org/zap"
)

type APIKeyService struct {
	repo   apikey.Repository
	logger *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		logger: logger.Named("APIKeyService"),
	}
}

func (s *APIKeyService) Create(ctx context.Context, description string) (*dto.CreateAPIKeyResponse, error) {
	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	record := &apikey.APIKey{
		KeyHash:     keyHash,
		Prefix:      prefix,
		Description: description,
		IsEnabled:   true,
		CreatedAt:   time.Now().UTC(),
	}

	id, err := s.repo.Create(ctx, record)
	if err != nil {
		s.logger.Error("Failed to store api key", zap.Error(err))
		return nil, err
	}

	// The full key is returned exactly once; only its hash is stored.
	return &dto.CreateAPIKeyResponse{
		ID:          id,
		FullKey:     fullKey,
		Prefix:      prefix,
		Description: description,
		CreatedAt:   record.CreatedAt,
	}, nil
}

func (s *APIKeyService) List(ctx context.Context) ([]*apikey.APIKey, error) {
	return s.repo.List(ctx)
}

func (s *APIKeyService) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Disable(ctx, id); err != nil {
		return err
	}
	s.logger.Info("API key disabled", zap.String("id", id.String()))
	return nil
}
