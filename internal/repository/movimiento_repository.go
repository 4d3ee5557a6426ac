package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chronos-api/internal/models"
)

const movimientosCollection = "movimientos"

type movimientoRepository struct {
	collection *mongo.Collection
}

// NewMovimientoRepository creates a movement repository on the movimientos collection
func NewMovimientoRepository(db *mongo.Database) MovimientoRepository {
	return &movimientoRepository{
		collection: db.Collection(movimientosCollection),
	}
}

func (r *movimientoRepository) Create(ctx context.Context, movimiento *models.Movimiento) error {
	record, err := newMovimientoRecord(movimiento)
	if err != nil {
		return err
	}

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create movimiento: %w", err)
	}

	movimiento.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *movimientoRepository) GetByID(ctx context.Context, id string) (*models.Movimiento, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewMovimientoNotFound(id)
	}

	var doc movimientoDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewMovimientoNotFound(id)
		}
		return nil, fmt.Errorf("failed to get movimiento by ID: %w", err)
	}
	return doc.toMovimiento()
}

func (r *movimientoRepository) ListByBanco(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error) {
	filter := bson.M{"bancoId": bancoID}
	if tipo != "" {
		filter["tipo"] = string(tipo)
	}

	opts := options.Find().SetSort(bson.D{{Key: "fecha", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list movimientos: %w", err)
	}
	defer cursor.Close(ctx)

	var movimientos []*models.Movimiento
	for cursor.Next(ctx) {
		var doc movimientoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode movimiento: %w", err)
		}
		movimiento, err := doc.toMovimiento()
		if err != nil {
			return nil, err
		}
		movimientos = append(movimientos, movimiento)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	models.OrdenarPorFecha(movimientos)
	return movimientos, nil
}

func (r *movimientoRepository) Update(ctx context.Context, movimiento *models.Movimiento) error {
	oid, err := primitive.ObjectIDFromHex(movimiento.ID)
	if err != nil {
		return models.NewMovimientoNotFound(movimiento.ID)
	}

	monto, err := toDecimal128(movimiento.Monto)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"monto":      monto,
			"concepto":   movimiento.Concepto,
			"fecha":      movimiento.Fecha,
			"referencia": movimiento.Referencia,
			"updatedAt":  movimiento.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update movimiento: %w", err)
	}

	if result.MatchedCount == 0 {
		return models.NewMovimientoNotFound(movimiento.ID)
	}
	return nil
}

func (r *movimientoRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.NewMovimientoNotFound(id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete movimiento: %w", err)
	}

	if result.DeletedCount == 0 {
		return models.NewMovimientoNotFound(id)
	}
	return nil
}
