package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	carts *mongo.Collection
	items *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		carts: db.Collection("carts"),
		items: db.Collection("cart_items"),
	}
}

func (m *mongoRepository) FindCartByID(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	err := m.carts.FindOne(ctx, bson.M{"_id": id}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

func (m *mongoRepository) CreateCart(ctx context.Context, id string) (*domain.Cart, error) {
	now := time.Now().UTC()
	cart := &domain.Cart{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := m.carts.InsertOne(ctx, cart)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrCartExists
		}
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

func (m *mongoRepository) UpsertItem(ctx context.Context, item domain.CartItem, incrementBy int64) (domain.CartItem, error) {
	now := time.Now().UTC()
	filter := bson.M{"cart_id": item.CartID, "item_id": item.ID}

	onInsert := bson.M{
		"name":       item.Name,
		"price":      item.Price,
		"created_at": now,
	}
	if item.Description != nil {
		onInsert["description"] = *item.Description
	}
	if item.Image != nil {
		onInsert["image"] = *item.Image
	}

	update := bson.M{
		"$inc":         bson.M{"quantity": incrementBy},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": onInsert,
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var saved domain.CartItem
	err := m.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on insert; the loser now finds the row and increments it
		err = m.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	}
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("failed to upsert item: %w", err)
	}
	return saved, nil
}

func (m *mongoRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, delta int64) (domain.CartItem, error) {
	filter := bson.M{"cart_id": cartID, "item_id": itemID}
	update := bson.M{
		"$inc": bson.M{"quantity": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var saved domain.CartItem
	err := m.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CartItem{}, ErrItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("failed to update item quantity: %w", err)
	}
	return saved, nil
}

func (m *mongoRepository) DecrementItem(ctx context.Context, cartID, itemID string) (domain.CartItem, bool, error) {
	for attempt := 0; attempt < maxDecrementAttempts; attempt++ {
		filter := bson.M{"cart_id": cartID, "item_id": itemID, "quantity": bson.M{"$gt": 0}}
		update := bson.M{
			"$inc": bson.M{"quantity": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var saved domain.CartItem
		err := m.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
		if err == nil {
			return saved, false, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CartItem{}, false, fmt.Errorf("failed to decrement item: %w", err)
		}

		var removed domain.CartItem
		err = m.items.FindOneAndDelete(ctx, bson.M{"cart_id": cartID, "item_id": itemID, "quantity": bson.M{"$lte": 0}}).Decode(&removed)
		if err == nil {
			return removed, true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CartItem{}, false, fmt.Errorf("failed to delete drained item: %w", err)
		}

		n, err := m.items.CountDocuments(ctx, bson.M{"cart_id": cartID, "item_id": itemID})
		if err != nil {
			return domain.CartItem{}, false, fmt.Errorf("failed to count item: %w", err)
		}
		if n == 0 {
			return domain.CartItem{}, false, ErrItemNotFound
		}
	}
	return domain.CartItem{}, false, ErrContention
}

func (m *mongoRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	result, err := m.items.DeleteOne(ctx, bson.M{"cart_id": cartID, "item_id": itemID})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "item_id", Value: 1}})
	cursor, err := m.items.Find(ctx, bson.M{"cart_id": cartID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := []domain.CartItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func (m *mongoRepository) Ping(ctx context.Context) error {
	return m.carts.Database().Client().Ping(ctx, nil)
}

func (m *mongoRepository) Close(ctx context.Context) error {
	return m.carts.Database().Client().Disconnect(ctx)
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cart_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "cart_id", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}

	_, err := m.items.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// EnsureIndexes creates the item indexes when repo is backed by MongoDB.
func EnsureIndexes(ctx context.Context, repo CartRepository) error {
	if mr, ok := repo.(*mongoRepository); ok {
		return mr.CreateIndexes(ctx)
	}
	return nil
}
