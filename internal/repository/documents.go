package repository

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"chronos-api/internal/models"
)

var errMissingValue = errors.New("missing value")

// bancoDocument is the stored shape of a banco. Fields that legacy writers
// stored with varying BSON types are kept raw and decoded explicitly.
type bancoDocument struct {
	ID            bson.RawValue `bson:"_id"`
	Nombre        string        `bson:"nombre"`
	CapitalActual bson.RawValue `bson:"capitalActual"`
	Moneda        string        `bson:"moneda"`
	CreatedAt     bson.RawValue `bson:"createdAt"`
	UpdatedAt     bson.RawValue `bson:"updatedAt"`
}

type bancoRecord struct {
	ID            string               `bson:"_id"`
	Nombre        string               `bson:"nombre"`
	CapitalActual primitive.Decimal128 `bson:"capitalActual"`
	Moneda        string               `bson:"moneda,omitempty"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type movimientoDocument struct {
	ID              primitive.ObjectID `bson:"_id"`
	BancoID         string             `bson:"bancoId"`
	Tipo            string             `bson:"tipo"`
	Monto           bson.RawValue      `bson:"monto"`
	Concepto        string             `bson:"concepto"`
	Fecha           bson.RawValue      `bson:"fecha"`
	Referencia      string             `bson:"referencia"`
	TransferenciaID string             `bson:"transferenciaId"`
	ContraparteID   string             `bson:"contraparteId"`
	CreatedAt       bson.RawValue      `bson:"createdAt"`
	UpdatedAt       bson.RawValue      `bson:"updatedAt"`
}

type movimientoRecord struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty"`
	BancoID         string               `bson:"bancoId"`
	Tipo            string               `bson:"tipo"`
	Monto           primitive.Decimal128 `bson:"monto"`
	Concepto        string               `bson:"concepto"`
	Fecha           time.Time            `bson:"fecha"`
	Referencia      string               `bson:"referencia,omitempty"`
	TransferenciaID string               `bson:"transferenciaId,omitempty"`
	ContraparteID   string               `bson:"contraparteId,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

// toBanco decodes a stored banco. A missing or non-numeric capital decodes as
// zero and is reported through capitalErr so callers can log it.
func (d *bancoDocument) toBanco() (banco *models.Banco, capitalErr error, err error) {
	id, err := decodeID(d.ID)
	if err != nil {
		return nil, nil, err
	}

	banco = &models.Banco{
		ID:     id,
		Nombre: d.Nombre,
		Moneda: d.Moneda,
	}
	if banco.Nombre == "" {
		banco.Nombre = models.BancoName(id)
	}

	capital, capitalErr := decodeDecimal(d.CapitalActual)
	if capitalErr != nil {
		capital = decimal.Zero
		capitalErr = fmt.Errorf("banco %q capitalActual: %w", id, capitalErr)
	}
	banco.CapitalActual = capital

	banco.CreatedAt, _ = decodeTime(d.CreatedAt)
	banco.UpdatedAt, _ = decodeTime(d.UpdatedAt)
	return banco, capitalErr, nil
}

// toMovimiento decodes a stored movement, failing with a ValidationError when
// a required field is absent or malformed.
func (d *movimientoDocument) toMovimiento() (*models.Movimiento, error) {
	if d.BancoID == "" {
		return nil, models.NewValidationError("bancoId", fmt.Sprintf("missing in movimiento %s", d.ID.Hex()))
	}

	tipo := models.TipoMovimiento(d.Tipo)
	if !tipo.Valid() {
		return nil, models.NewValidationError("tipo", fmt.Sprintf("invalid value %q in movimiento %s", d.Tipo, d.ID.Hex()))
	}

	monto, err := decodeDecimal(d.Monto)
	if err != nil {
		return nil, models.NewValidationError("monto", fmt.Sprintf("%v in movimiento %s", err, d.ID.Hex()))
	}

	createdAt, _ := decodeTime(d.CreatedAt)
	fecha, ok := decodeTime(d.Fecha)
	if !ok {
		if createdAt.IsZero() {
			return nil, models.NewValidationError("fecha", fmt.Sprintf("missing in movimiento %s", d.ID.Hex()))
		}
		fecha = createdAt
	}
	updatedAt, _ := decodeTime(d.UpdatedAt)

	return &models.Movimiento{
		ID:              d.ID.Hex(),
		BancoID:         d.BancoID,
		Tipo:            tipo,
		Monto:           monto,
		Concepto:        d.Concepto,
		Fecha:           fecha,
		Referencia:      d.Referencia,
		TransferenciaID: d.TransferenciaID,
		ContraparteID:   d.ContraparteID,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func newBancoRecord(b *models.Banco) (*bancoRecord, error) {
	capital, err := toDecimal128(b.CapitalActual)
	if err != nil {
		return nil, err
	}
	return &bancoRecord{
		ID:            b.ID,
		Nombre:        b.Nombre,
		CapitalActual: capital,
		Moneda:        b.Moneda,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}, nil
}

func newMovimientoRecord(m *models.Movimiento) (*movimientoRecord, error) {
	monto, err := toDecimal128(m.Monto)
	if err != nil {
		return nil, err
	}
	return &movimientoRecord{
		BancoID:         m.BancoID,
		Tipo:            string(m.Tipo),
		Monto:           monto,
		Concepto:        m.Concepto,
		Fecha:           m.Fecha,
		Referencia:      m.Referencia,
		TransferenciaID: m.TransferenciaID,
		ContraparteID:   m.ContraparteID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}

func decodeID(v bson.RawValue) (string, error) {
	switch v.Type {
	case bsontype.String:
		return v.StringValue(), nil
	case bsontype.ObjectID:
		return v.ObjectID().Hex(), nil
	}
	return "", models.NewValidationError("_id", fmt.Sprintf("unsupported type %s", v.Type))
}

func decodeDecimal(v bson.RawValue) (decimal.Decimal, error) {
	switch v.Type {
	case bsontype.Type(0), bsontype.Null, bsontype.Undefined:
		return decimal.Zero, errMissingValue
	case bsontype.Decimal128:
		return decimal.NewFromString(v.Decimal128().String())
	case bsontype.Double:
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, fmt.Errorf("non-numeric value %v", f)
		}
		return decimal.NewFromFloat(f), nil
	case bsontype.Int32:
		return decimal.NewFromInt32(v.Int32()), nil
	case bsontype.Int64:
		return decimal.NewFromInt(v.Int64()), nil
	}
	return decimal.Zero, fmt.Errorf("non-numeric value of type %s", v.Type)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// decodeTime resolves the timestamp encodings found in stored documents into
// a concrete UTC time.
func decodeTime(v bson.RawValue) (time.Time, bool) {
	switch v.Type {
	case bsontype.DateTime:
		return v.Time().UTC(), true
	case bsontype.Timestamp:
		t, _ := v.Timestamp()
		return time.Unix(int64(t), 0).UTC(), true
	case bsontype.Int64:
		return time.UnixMilli(v.Int64()).UTC(), true
	case bsontype.String:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v.StringValue()); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	value, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode %s as decimal128: %w", d.String(), err)
	}
	return value, nil
}
