package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EntityRepositoryMongo implements domain.EntityRepository
type EntityRepositoryMongo struct {
	collection *mongo.Collection
}

var _ domain.EntityRepository = (*EntityRepositoryMongo)(nil)

// NewEntityRepositoryMongo creates a new EntityRepositoryMongo.
func NewEntityRepositoryMongo(ctx context.Context, db *mongo.Database) (*EntityRepositoryMongo, error) {
	repo := &EntityRepositoryMongo{
		collection: db.Collection(EntitiesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create frigg_entities indexes")
	}
	return repo, nil
}

func (r *EntityRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// Closes the find-or-create race: the losing insert gets a duplicate key error.
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "module", Value: 1},
				{Key: "external_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "credential_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", EntitiesCollection, err)
	}
	log.Info().Msgf("Indexes for %s collection ensured.", EntitiesCollection)
	return nil
}

func (r *EntityRepositoryMongo) Create(ctx context.Context, entity *domain.Entity) error {
	if entity.ID == "" {
		entity.ID = NewObjectID()
	}
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, entity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &domain.DuplicateError{Collection: EntitiesCollection, Err: err}
		}
		log.Error().Err(err).Str("user_id", entity.UserID).Str("module", entity.Module).Msg("Error creating entity")
		return err
	}
	return nil
}

func (r *EntityRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	var entity domain.Entity
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ferrors.ErrNotFound
		}
		log.Error().Err(err).Str("entity_id", id).Msg("Error getting entity by ID")
		return nil, err
	}
	return &entity, nil
}

func (r *EntityRepositoryMongo) Find(ctx context.Context, f domain.EntityFilter) ([]*domain.Entity, error) {
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

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Error finding entities")
		return nil, err
	}
	defer cursor.Close(ctx)

	var entities []*domain.Entity
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}
	return entities, nil
}

func (r *EntityRepositoryMongo) updateOne(ctx context.Context, id string, set bson.M) (*domain.Entity, error) {
	set["updated_at"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var entity domain.Entity
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ferrors.ErrNotFound
		}
		log.Error().Err(err).Str("entity_id", id).Msg("Error updating entity")
		return nil, err
	}
	return &entity, nil
}

func (r *EntityRepositoryMongo) SetCredential(ctx context.Context, id, credentialID string) (*domain.Entity, error) {
	return r.updateOne(ctx, id, bson.M{"credential_id": credentialID})
}

func (r *EntityRepositoryMongo) UpdateName(ctx context.Context, id, name string) (*domain.Entity, error) {
	return r.updateOne(ctx, id, bson.M{"name": name})
}

// UnsetCredential detaches credentialID from every entity that references it.
func (r *EntityRepositoryMongo) UnsetCredential(ctx context.Context, credentialID string) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"credential_id": credentialID},
		bson.M{
			"$unset": bson.M{"credential_id": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("Error unlinking credential from entities")
		return err
	}
	return nil
}

func (r *EntityRepositoryMongo) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("entity_id", id).Msg("Error deleting entity")
		return err
	}
	if result.DeletedCount == 0 {
		return ferrors.ErrNotFound
	}
	return nil
}
