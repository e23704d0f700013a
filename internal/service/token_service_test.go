package service

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/repository"
	"crabber/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_AccessTokens(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "developer")

	var issued []*models.AccessToken
	for i := 0; i < config.DefaultLimits().MaxAccessTokens; i++ {
		at, err := svc.Tokens.IssueAccessToken(ctx, crab.ID)
		require.NoError(t, err)
		assert.Len(t, at.Key, 32)
		_, err = hex.DecodeString(at.Key)
		assert.NoError(t, err)
		issued = append(issued, at)
	}
	_, err := svc.Tokens.IssueAccessToken(ctx, crab.ID)
	requireCode(t, err, models.CodeValidation)

	owner, err := svc.Tokens.ResolveAccessToken(ctx, issued[0].Key)
	require.NoError(t, err)
	assert.Equal(t, crab.ID, owner.ID)

	require.NoError(t, svc.Tokens.RevokeAccessToken(ctx, crab.ID, issued[0].Key))
	_, err = svc.Tokens.ResolveAccessToken(ctx, issued[0].Key)
	requireCode(t, err, models.CodeNotFound)

	_, err = svc.Tokens.IssueAccessToken(ctx, crab.ID)
	require.NoError(t, err, "revoking frees a slot")

	other := testutil.Crab(t, db, "intruder")
	requireCode(t, svc.Tokens.RevokeAccessToken(ctx, other.ID, issued[1].Key), models.CodeNotFound)

	testutil.Set(t, db, crab, map[string]interface{}{"banned": true})
	_, err = svc.Tokens.ResolveAccessToken(ctx, issued[1].Key)
	requireCode(t, err, models.CodeNotFound)
}

func TestTokenService_DeveloperKeys(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "developer")

	dk, err := svc.Tokens.IssueDeveloperKey(ctx, crab.ID)
	require.NoError(t, err)
	owner, err := svc.Tokens.ResolveDeveloperKey(ctx, dk.Key)
	require.NoError(t, err)
	assert.Equal(t, crab.ID, owner.ID)

	_, err = svc.Tokens.ResolveDeveloperKey(ctx, "0123456789abcdef0123456789abcdef")
	requireCode(t, err, models.CodeNotFound)

	require.NoError(t, svc.Tokens.RevokeDeveloperKey(ctx, crab.ID, dk.Key))
	_, err = svc.Tokens.ResolveDeveloperKey(ctx, dk.Key)
	requireCode(t, err, models.CodeNotFound)
}

// txStub runs fn inline without a database.
type txStub struct{}

func (txStub) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// crabRepoStub is a stub for repository.CrabRepository. Unset methods panic.
type crabRepoStub struct {
	repository.CrabRepository
	getByIDFn func(context.Context, uint) (*models.Crab, error)
}

func (s *crabRepoStub) GetByID(ctx context.Context, id uint) (*models.Crab, error) {
	return s.getByIDFn(ctx, id)
}

// tokenRepoStub is a stub for repository.TokenRepository. Unset methods panic.
type tokenRepoStub struct {
	repository.TokenRepository
	countLiveAccessTokensFn func(context.Context, uint) (int64, error)
	createAccessTokenFn     func(context.Context, *models.AccessToken) error
}

func (s *tokenRepoStub) CountLiveAccessTokens(ctx context.Context, crabID uint) (int64, error) {
	return s.countLiveAccessTokensFn(ctx, crabID)
}

func (s *tokenRepoStub) CreateAccessToken(ctx context.Context, at *models.AccessToken) error {
	return s.createAccessTokenFn(ctx, at)
}

func TestTokenService_IssueAccessTokenStubs(t *testing.T) {
	visible := &crabRepoStub{getByIDFn: func(_ context.Context, id uint) (*models.Crab, error) {
		return &models.Crab{ID: id}, nil
	}}
	limits := config.DefaultLimits()
	limits.MaxAccessTokens = 2

	t.Run("count error propagates", func(t *testing.T) {
		boom := models.NewInternalError(errors.New("db down"))
		tokens := &tokenRepoStub{countLiveAccessTokensFn: func(context.Context, uint) (int64, error) { return 0, boom }}
		svc := NewTokenService(txStub{}, visible, tokens, limits)
		_, err := svc.IssueAccessToken(context.Background(), 1)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("configured limit applies", func(t *testing.T) {
		tokens := &tokenRepoStub{countLiveAccessTokensFn: func(context.Context, uint) (int64, error) { return 2, nil }}
		svc := NewTokenService(txStub{}, visible, tokens, limits)
		_, err := svc.IssueAccessToken(context.Background(), 1)
		requireCode(t, err, models.CodeValidation)
	})

	t.Run("conflict surfaces", func(t *testing.T) {
		tokens := &tokenRepoStub{
			countLiveAccessTokensFn: func(context.Context, uint) (int64, error) { return 0, nil },
			createAccessTokenFn: func(context.Context, *models.AccessToken) error {
				return models.NewConflictError("Key already exists", nil)
			},
		}
		svc := NewTokenService(txStub{}, visible, tokens, limits)
		_, err := svc.IssueAccessToken(context.Background(), 1)
		requireCode(t, err, models.CodeConflict)
	})

	t.Run("owner must be visible", func(t *testing.T) {
		gone := &crabRepoStub{getByIDFn: func(_ context.Context, id uint) (*models.Crab, error) {
			return nil, models.NewNotFoundError("Crab", id)
		}}
		svc := NewTokenService(txStub{}, gone, &tokenRepoStub{}, limits)
		_, err := svc.IssueAccessToken(context.Background(), 1)
		requireCode(t, err, models.CodeNotFound)
	})
}
