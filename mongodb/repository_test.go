package mongodb_test

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/internal/crypto"
	"github.com/pilab-dev/frigg/mongodb"
	"github.com/pilab-dev/frigg/mongodb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func ptr[T any](v T) *T { return &v }

func TestCredentialRepositoryMongo_Integration(t *testing.T) {
	db := testutil.SetupTestMongoDB(t, "frigg_credentials_test")
	ctx := context.Background()

	cryptor, err := crypto.NewCryptor(crypto.Key{ID: "k1", Secret: "secret"})
	require.NoError(t, err)
	repo, err := mongodb.NewCredentialRepositoryMongo(ctx, db, cryptor)
	require.NoError(t, err)

	expire := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	cred := &domain.Credential{
		UserID:            "u1",
		Module:            "hubspot",
		AccessToken:       "at-1",
		RefreshToken:      "rt-1",
		AccessTokenExpire: &expire,
		ExternalID:        "portal-1",
		AuthIsValid:       true,
	}
	require.NoError(t, repo.Create(ctx, cred))
	require.NotEmpty(t, cred.ID)

	t.Run("tokens are encrypted at rest", func(t *testing.T) {
		var raw bson.M
		require.NoError(t, db.Collection(mongodb.CredentialsCollection).FindOne(ctx, bson.M{"_id": cred.ID}).Decode(&raw))
		assert.NotEqual(t, "at-1", raw["access_token"])
		assert.True(t, crypto.IsEncrypted(raw["access_token"].(string)))
	})

	t.Run("get decrypts", func(t *testing.T) {
		got, err := repo.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "at-1", got.AccessToken)
		assert.Equal(t, "rt-1", got.RefreshToken)
		require.NotNil(t, got.AccessTokenExpire)
		assert.True(t, expire.Equal(*got.AccessTokenExpire))
	})

	t.Run("unique per user, module and external id", func(t *testing.T) {
		err := repo.Create(ctx, &domain.Credential{UserID: "u1", Module: "hubspot", ExternalID: "portal-1", AccessToken: "x"})
		var dup *domain.DuplicateError
		assert.ErrorAs(t, err, &dup)

		second := &domain.Credential{UserID: "u1", Module: "hubspot", ExternalID: "portal-2", AccessToken: "y"}
		require.NoError(t, repo.Create(ctx, second))
		found, err := repo.Find(ctx, domain.CredentialFilter{UserID: "u1", Module: "hubspot"})
		require.NoError(t, err)
		assert.Len(t, found, 2)
		require.NoError(t, repo.Delete(ctx, second.ID))
	})

	t.Run("update", func(t *testing.T) {
		got, err := repo.Update(ctx, cred.ID, domain.CredentialUpdate{
			AccessToken: ptr("at-2"),
			AuthIsValid: ptr(false),
			ExternalID:  ptr("portal-9"),
		})
		require.NoError(t, err)
		assert.Equal(t, "at-2", got.AccessToken)
		assert.Equal(t, "rt-1", got.RefreshToken)
		assert.False(t, got.AuthIsValid)
		assert.Equal(t, "portal-9", got.ExternalID)

		found, err := repo.Find(ctx, domain.CredentialFilter{UserID: "u1", Module: "hubspot"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "at-2", found[0].AccessToken)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, cred.ID))
		_, err := repo.GetByID(ctx, cred.ID)
		assert.ErrorIs(t, err, ferrors.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, cred.ID), ferrors.ErrNotFound)
	})
}

func TestEntityRepositoryMongo_Integration(t *testing.T) {
	db := testutil.SetupTestMongoDB(t, "frigg_entities_test")
	ctx := context.Background()

	provider, err := mongodb.NewRepositoryProvider(ctx, db, nil)
	require.NoError(t, err)
	repo := provider.EntityRepository()

	entity := &domain.Entity{UserID: "u1", Module: "qbo", ExternalID: "realm-1", Name: "Acme", CredentialID: "c1"}
	require.NoError(t, repo.Create(ctx, entity))

	err = repo.Create(ctx, &domain.Entity{UserID: "u1", Module: "qbo", ExternalID: "realm-1"})
	var dup *domain.DuplicateError
	require.ErrorAs(t, err, &dup)

	// a different user may connect the same company
	require.NoError(t, repo.Create(ctx, &domain.Entity{UserID: "u2", Module: "qbo", ExternalID: "realm-1"}))

	found, err := repo.Find(ctx, domain.EntityFilter{UserID: "u1", Module: "qbo", ExternalID: "realm-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, entity.ID, found[0].ID)

	renamed, err := repo.UpdateName(ctx, entity.ID, "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", renamed.Name)

	require.NoError(t, repo.UnsetCredential(ctx, "c1"))
	got, err := repo.GetByID(ctx, entity.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CredentialID)

	linked, err := repo.SetCredential(ctx, entity.ID, "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", linked.CredentialID)

	require.NoError(t, repo.Delete(ctx, entity.ID))
	_, err = repo.GetByID(ctx, entity.ID)
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}
