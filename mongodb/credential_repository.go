package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/internal/crypto"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// FieldCryptor encrypts individual field values.
type FieldCryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

// CredentialRepositoryMongo implements domain.CredentialRepository.
// Tokens are encrypted at rest when a cryptor is configured.
type CredentialRepositoryMongo struct {
	collection *mongo.Collection
	cryptor    FieldCryptor
}

var _ domain.CredentialRepository = (*CredentialRepositoryMongo)(nil)

// NewCredentialRepositoryMongo creates a new CredentialRepositoryMongo. cryptor may be nil.
func NewCredentialRepositoryMongo(ctx context.Context, db *mongo.Database, cryptor FieldCryptor) (*CredentialRepositoryMongo, error) {
	repo := &CredentialRepositoryMongo{
		collection: db.Collection(CredentialsCollection),
		cryptor:    cryptor,
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create frigg_credentials indexes")
	}
	return repo, nil
}

// legacyUniqueIndex allowed a single credential per user and module.
const legacyUniqueIndex = "user_id_1_module_1"

func (r *CredentialRepositoryMongo) createIndexes(ctx context.Context) error {
	if err := r.collection.Indexes().DropOne(ctx, legacyUniqueIndex); err == nil {
		log.Info().Msgf("Dropped legacy index %s of %s collection.", legacyUniqueIndex, CredentialsCollection)
	}

	indexModels := []mongo.IndexModel{
		{
			// One credential per user, module and external account; concurrent token updates converge on it.
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "module", Value: 1},
				{Key: "external_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("user_module_external_id_unique"),
		},
		{
			Keys: bson.D{{Key: "module", Value: 1}, {Key: "external_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", CredentialsCollection, err)
	}
	log.Info().Msgf("Indexes for %s collection ensured.", CredentialsCollection)
	return nil
}

func (r *CredentialRepositoryMongo) encrypt(v string) (string, error) {
	if r.cryptor == nil || v == "" {
		return v, nil
	}
	return r.cryptor.Encrypt(v)
}

func (r *CredentialRepositoryMongo) decrypt(v string) (string, error) {
	// values written before encryption was enabled are returned as stored
	if r.cryptor == nil || !crypto.IsEncrypted(v) {
		return v, nil
	}
	return r.cryptor.Decrypt(v)
}

func (r *CredentialRepositoryMongo) decryptCredential(c *domain.Credential) error {
	var err error
	if c.AccessToken, err = r.decrypt(c.AccessToken); err != nil {
		return fmt.Errorf("failed to decrypt access token of credential %s: %w", c.ID, err)
	}
	if c.RefreshToken, err = r.decrypt(c.RefreshToken); err != nil {
		return fmt.Errorf("failed to decrypt refresh token of credential %s: %w", c.ID, err)
	}
	return nil
}

func (r *CredentialRepositoryMongo) Create(ctx context.Context, credential *domain.Credential) error {
	if credential.ID == "" {
		credential.ID = NewObjectID()
	}
	now := time.Now().UTC()
	credential.CreatedAt = now
	credential.UpdatedAt = now

	doc := *credential
	var err error
	if doc.AccessToken, err = r.encrypt(credential.AccessToken); err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if doc.RefreshToken, err = r.encrypt(credential.RefreshToken); err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &domain.DuplicateError{Collection: CredentialsCollection, Err: err}
		}
		log.Error().Err(err).Str("user_id", credential.UserID).Str("module", credential.Module).Msg("Error creating credential")
		return err
	}
	return nil
}

func (r *CredentialRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	var credential domain.Credential
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&credential)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ferrors.ErrNotFound
		}
		log.Error().Err(err).Str("credential_id", id).Msg("Error getting credential by ID")
		return nil, err
	}
	if err := r.decryptCredential(&credential); err != nil {
		return nil, err
	}
	return &credential, nil
}

func credentialFilter(f domain.CredentialFilter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Module != "" {
		filter["module"] = f.Module
	}
	if f.ExternalID != "" {
		filter["external_id"] = f.ExternalID
	}
	return filter
}

func (r *CredentialRepositoryMongo) Find(ctx context.Context, filter domain.CredentialFilter) ([]*domain.Credential, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, credentialFilter(filter), opts)
	if err != nil {
		log.Error().Err(err).Msg("Error finding credentials")
		return nil, err
	}
	defer cursor.Close(ctx)

	var credentials []*domain.Credential
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	for _, c := range credentials {
		if err := r.decryptCredential(c); err != nil {
			return nil, err
		}
	}
	return credentials, nil
}

func (r *CredentialRepositoryMongo) Update(ctx context.Context, id string, update domain.CredentialUpdate) (*domain.Credential, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.AccessToken != nil {
		v, err := r.encrypt(*update.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		set["access_token"] = v
	}
	if update.RefreshToken != nil {
		v, err := r.encrypt(*update.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		set["refresh_token"] = v
	}
	if update.AccessTokenExpire != nil {
		set["access_token_expire"] = *update.AccessTokenExpire
	}
	if update.RefreshTokenExpire != nil {
		set["refresh_token_expire"] = *update.RefreshTokenExpire
	}
	if update.ExternalID != nil {
		set["external_id"] = *update.ExternalID
	}
	if update.AuthIsValid != nil {
		set["auth_is_valid"] = *update.AuthIsValid
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var credential domain.Credential
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&credential)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ferrors.ErrNotFound
		}
		log.Error().Err(err).Str("credential_id", id).Msg("Error updating credential")
		return nil, err
	}
	if err := r.decryptCredential(&credential); err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *CredentialRepositoryMongo) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("credential_id", id).Msg("Error deleting credential")
		return err
	}
	if result.DeletedCount == 0 {
		return ferrors.ErrNotFound
	}
	return nil
}
