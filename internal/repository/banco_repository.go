package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chronos-api/internal/models"
)

const bancosCollection = "bancos"

type bancoRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

// NewBancoRepository creates a banco repository on the bancos collection
func NewBancoRepository(db *mongo.Database, logger *logrus.Logger) BancoRepository {
	return &bancoRepository{
		collection: db.Collection(bancosCollection),
		logger:     logger,
	}
}

func (r *bancoRepository) Create(ctx context.Context, banco *models.Banco) error {
	record, err := newBancoRecord(banco)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.NewValidationError("id", fmt.Sprintf("banco %q already exists", banco.ID))
		}
		return fmt.Errorf("failed to create banco: %w", err)
	}
	return nil
}

func (r *bancoRepository) GetByID(ctx context.Context, id string) (*models.Banco, error) {
	var doc bancoDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewBancoNotFound(id)
		}
		return nil, fmt.Errorf("failed to get banco by ID: %w", err)
	}
	return r.decode(&doc)
}

func (r *bancoRepository) List(ctx context.Context) ([]*models.Banco, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bancos: %w", err)
	}
	defer cursor.Close(ctx)

	var bancos []*models.Banco
	for cursor.Next(ctx) {
		var doc bancoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode banco: %w", err)
		}
		banco, err := r.decode(&doc)
		if err != nil {
			return nil, err
		}
		bancos = append(bancos, banco)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return bancos, nil
}

func (r *bancoRepository) AdjustCapital(ctx context.Context, id string, delta decimal.Decimal, at time.Time) error {
	inc, err := toDecimal128(delta)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": id}
	if delta.IsNegative() {
		required, err := toDecimal128(delta.Neg())
		if err != nil {
			return err
		}
		filter["capitalActual"] = bson.M{"$gte": required}
	}

	update := bson.M{
		"$inc": bson.M{"capitalActual": inc},
		"$set": bson.M{"updatedAt": at},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to adjust capital of banco %q: %w", id, err)
	}

	if result.MatchedCount == 0 {
		banco, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return &models.InsufficientFundsError{
			BancoID:    id,
			Disponible: banco.CapitalActual,
			Requerido:  delta.Neg(),
		}
	}
	return nil
}

func (r *bancoRepository) decode(doc *bancoDocument) (*models.Banco, error) {
	banco, capitalErr, err := doc.toBanco()
	if err != nil {
		return nil, err
	}
	if capitalErr != nil {
		r.logger.WithError(capitalErr).Warn("Banco capital is missing or non-numeric, treating it as zero")
	}
	return banco, nil
}
