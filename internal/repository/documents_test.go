package repository

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"chronos-api/internal/models"
)

func decodeBancoDoc(t *testing.T, raw bson.M) bancoDocument {
	t.Helper()
	data, err := bson.Marshal(raw)
	require.NoError(t, err)

	var doc bancoDocument
	require.NoError(t, bson.Unmarshal(data, &doc))
	return doc
}

func decodeMovimientoDoc(t *testing.T, raw bson.M) movimientoDocument {
	t.Helper()
	data, err := bson.Marshal(raw)
	require.NoError(t, err)

	var doc movimientoDocument
	require.NoError(t, bson.Unmarshal(data, &doc))
	return doc
}

func TestBancoDocumentCapitalEncodings(t *testing.T) {
	dec128, err := primitive.ParseDecimal128("1500.25")
	require.NoError(t, err)
	nan128, err := primitive.ParseDecimal128("NaN")
	require.NoError(t, err)

	tests := []struct {
		name       string
		capital    interface{}
		omit       bool
		want       decimal.Decimal
		wantCapErr bool
	}{
		{name: "decimal128", capital: dec128, want: decimal.RequireFromString("1500.25")},
		{name: "double", capital: 99.5, want: decimal.RequireFromString("99.5")},
		{name: "int32", capital: int32(42), want: decimal.NewFromInt(42)},
		{name: "int64", capital: int64(7), want: decimal.NewFromInt(7)},
		{name: "string", capital: "mucho", want: decimal.Zero, wantCapErr: true},
		{name: "missing", omit: true, want: decimal.Zero, wantCapErr: true},
		{name: "decimal128 nan", capital: nan128, want: decimal.Zero, wantCapErr: true},
		{name: "nan", capital: math.NaN(), want: decimal.Zero, wantCapErr: true},
		{name: "positive inf", capital: math.Inf(1), want: decimal.Zero, wantCapErr: true},
		{name: "negative inf", capital: math.Inf(-1), want: decimal.Zero, wantCapErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := bson.M{"_id": "profit", "nombre": "Profit"}
			if !tt.omit {
				raw["capitalActual"] = tt.capital
			}

			doc := decodeBancoDoc(t, raw)
			banco, capErr, err := doc.toBanco()
			require.NoError(t, err)

			assert.Equal(t, "profit", banco.ID)
			assert.True(t, tt.want.Equal(banco.CapitalActual), "got %s", banco.CapitalActual)
			assert.Equal(t, tt.wantCapErr, capErr != nil)
		})
	}
}

func TestBancoDocumentDefaults(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := decodeBancoDoc(t, bson.M{"_id": oid, "capitalActual": 10})

	banco, _, err := doc.toBanco()
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), banco.ID)
	assert.Equal(t, oid.Hex(), banco.Nombre)

	doc = decodeBancoDoc(t, bson.M{"_id": "fleteSur", "capitalActual": 10})
	banco, _, err = doc.toBanco()
	require.NoError(t, err)
	assert.Equal(t, "Flete Sur", banco.Nombre)
}

func TestMovimientoDocumentDecode(t *testing.T) {
	fecha := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	oid := primitive.NewObjectID()

	doc := decodeMovimientoDoc(t, bson.M{
		"_id":             oid,
		"bancoId":         "profit",
		"tipo":            "GASTO",
		"monto":           -150.0,
		"concepto":        "Renta",
		"fecha":           primitive.NewDateTimeFromTime(fecha),
		"transferenciaId": "abc",
	})

	mov, err := doc.toMovimiento()
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), mov.ID)
	assert.Equal(t, models.TipoGasto, mov.Tipo)
	assert.True(t, mov.Monto.Equal(decimal.NewFromInt(-150)))
	assert.True(t, mov.Fecha.Equal(fecha))
	assert.True(t, mov.IsTransferLeg())
}

func TestMovimientoDocumentResolvesDates(t *testing.T) {
	tests := []struct {
		name  string
		fecha interface{}
		want  time.Time
	}{
		{"rfc3339 string", "2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"date only string", "2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"timestamp", primitive.Timestamp{T: 1704164645}, time.Unix(1704164645, 0).UTC()},
		{"unix millis", int64(1704164645000), time.UnixMilli(1704164645000).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decodeMovimientoDoc(t, bson.M{
				"_id":     primitive.NewObjectID(),
				"bancoId": "azteca",
				"tipo":    "INGRESO",
				"monto":   int32(10),
				"fecha":   tt.fecha,
			})

			mov, err := doc.toMovimiento()
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(mov.Fecha), "got %s", mov.Fecha)
		})
	}
}

func TestMovimientoDocumentFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	doc := decodeMovimientoDoc(t, bson.M{
		"_id":       primitive.NewObjectID(),
		"bancoId":   "azteca",
		"tipo":      "INGRESO",
		"monto":     int32(10),
		"createdAt": created,
	})

	mov, err := doc.toMovimiento()
	require.NoError(t, err)
	assert.True(t, created.Equal(mov.Fecha))
}

func TestMovimientoDocumentValidation(t *testing.T) {
	base := func() bson.M {
		return bson.M{
			"_id":     primitive.NewObjectID(),
			"bancoId": "profit",
			"tipo":    "INGRESO",
			"monto":   100.0,
			"fecha":   time.Now(),
		}
	}

	tests := []struct {
		name   string
		mutate func(bson.M)
		field  string
	}{
		{"missing bancoId", func(m bson.M) { delete(m, "bancoId") }, "bancoId"},
		{"unknown tipo", func(m bson.M) { m["tipo"] = "TRASPASO" }, "tipo"},
		{"missing monto", func(m bson.M) { delete(m, "monto") }, "monto"},
		{"string monto", func(m bson.M) { m["monto"] = "cien" }, "monto"},
		{"nan monto", func(m bson.M) { m["monto"] = math.NaN() }, "monto"},
		{"inf monto", func(m bson.M) { m["monto"] = math.Inf(1) }, "monto"},
		{"missing fecha", func(m bson.M) { delete(m, "fecha") }, "fecha"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base()
			tt.mutate(raw)

			doc := decodeMovimientoDoc(t, raw)
			_, err := doc.toMovimiento()

			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestRecordsRoundTripAmounts(t *testing.T) {
	mov := &models.Movimiento{
		BancoID:  "profit",
		Tipo:     models.TipoIngreso,
		Monto:    decimal.RequireFromString("1234.56"),
		Concepto: "Venta",
		Fecha:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	record, err := newMovimientoRecord(mov)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", record.Monto.String())
	assert.True(t, record.ID.IsZero())

	banco := &models.Banco{ID: "profit", Nombre: "Profit", CapitalActual: decimal.Zero}
	bRecord, err := newBancoRecord(banco)
	require.NoError(t, err)
	assert.Equal(t, "0", bRecord.CapitalActual.String())
}

func TestClassifyTransactionError(t *testing.T) {
	assert.NoError(t, classifyTransactionError(nil))

	conflict := mongo.CommandError{Code: writeConflictCode, Name: "WriteConflict"}
	assert.ErrorIs(t, classifyTransactionError(conflict), models.ErrTransactionConflict)

	transient := mongo.CommandError{Code: 251, Labels: []string{labelTransientTxn}}
	assert.ErrorIs(t, classifyTransactionError(transient), models.ErrTransactionConflict)

	domain := models.NewBancoNotFound("x")
	assert.Equal(t, domain, classifyTransactionError(domain))

	other := errors.New("boom")
	assert.Equal(t, other, classifyTransactionError(other))
}
