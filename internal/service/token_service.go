package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"
)

// keyBytes is the entropy of a generated key; hex encoding doubles it to 32 characters.
const keyBytes = 16

// TokenService issues and resolves API credentials.
type TokenService struct {
	tx     repository.Transactor
	crabs  repository.CrabRepository
	tokens repository.TokenRepository
	limits config.Limits
}

func NewTokenService(
	tx repository.Transactor,
	crabs repository.CrabRepository,
	tokens repository.TokenRepository,
	limits config.Limits,
) *TokenService {
	return &TokenService{
		tx:     tx,
		crabs:  crabs,
		tokens: tokens,
		limits: limits,
	}
}

func generateKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IssueDeveloperKey creates a developer key for a visible crab.
func (s *TokenService) IssueDeveloperKey(ctx context.Context, crabID uint) (*models.DeveloperKey, error) {
	var dk *models.DeveloperKey
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		live, err := s.tokens.CountLiveDeveloperKeys(ctx, crabID)
		if err != nil {
			return err
		}
		if live >= int64(s.limits.MaxDeveloperKeys) {
			return models.NewValidationError(fmt.Sprintf("A crab may hold at most %d developer keys", s.limits.MaxDeveloperKeys))
		}
		key, err := generateKey()
		if err != nil {
			return models.NewInternalError(err)
		}
		dk = &models.DeveloperKey{CrabID: crabID, Key: key}
		return s.tokens.CreateDeveloperKey(ctx, dk)
	})
	if err != nil {
		return nil, err
	}
	observability.Logger.InfoContext(ctx, "developer key issued", "crab_id", crabID)
	return dk, nil
}

// IssueAccessToken creates an access token for a visible crab.
func (s *TokenService) IssueAccessToken(ctx context.Context, crabID uint) (*models.AccessToken, error) {
	var at *models.AccessToken
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		live, err := s.tokens.CountLiveAccessTokens(ctx, crabID)
		if err != nil {
			return err
		}
		if live >= int64(s.limits.MaxAccessTokens) {
			return models.NewValidationError(fmt.Sprintf("A crab may hold at most %d access tokens", s.limits.MaxAccessTokens))
		}
		key, err := generateKey()
		if err != nil {
			return models.NewInternalError(err)
		}
		at = &models.AccessToken{CrabID: crabID, Key: key}
		return s.tokens.CreateAccessToken(ctx, at)
	})
	if err != nil {
		return nil, err
	}
	observability.Logger.InfoContext(ctx, "access token issued", "crab_id", crabID)
	return at, nil
}

func (s *TokenService) RevokeDeveloperKey(ctx context.Context, crabID uint, key string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.tokens.RevokeDeveloperKey(ctx, crabID, key)
	})
}

func (s *TokenService) RevokeAccessToken(ctx context.Context, crabID uint, key string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.tokens.RevokeAccessToken(ctx, crabID, key)
	})
}

// ResolveAccessToken returns the visible crab owning a live access token.
func (s *TokenService) ResolveAccessToken(ctx context.Context, key string) (*models.Crab, error) {
	at, err := s.tokens.FindAccessToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if !at.Crab.Visible() {
		return nil, models.NewNotFoundError("Access token", "(redacted)")
	}
	return &at.Crab, nil
}

// ResolveDeveloperKey returns the visible crab owning a live developer key.
func (s *TokenService) ResolveDeveloperKey(ctx context.Context, key string) (*models.Crab, error) {
	dk, err := s.tokens.FindDeveloperKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !dk.Crab.Visible() {
		return nil, models.NewNotFoundError("Developer key", "(redacted)")
	}
	return &dk.Crab, nil
}
