package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID        string                `bson:"_id,omitempty"`
	Scope     string                `bson:"scope"`
	Items     []domain.CartLineItem `bson:"items"`
	CreatedAt time.Time             `bson:"created_at"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *mongoRepository) ReadCart(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"scope": scope.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	if doc.Items == nil {
		doc.Items = []domain.CartLineItem{}
	}
	return doc.Items, nil
}

func (m *mongoRepository) WriteCart(ctx context.Context, scope domain.Scope, items []domain.CartLineItem) error {
	if items == nil {
		items = []domain.CartLineItem{}
	}
	now := m.now()

	filter := bson.M{"scope": scope.String()}
	update := bson.M{
		"$set": bson.M{
			"items":      items,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"scope":      scope.String(),
			"created_at": now,
		},
	}

	// a single document update, so readers never see half of a write
	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write cart: %w", err)
	}
	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, scope domain.Scope) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"scope": scope.String()})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "scope", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // abandoned carts
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// EnsureIndexes creates the cart indexes when repo is Mongo-backed.
func EnsureIndexes(ctx context.Context, repo CartRepository) error {
	m, ok := repo.(*mongoRepository)
	if !ok {
		return nil
	}
	return m.CreateIndexes(ctx)
}
