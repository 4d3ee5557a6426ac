package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"chronos-api/internal/models"
)

const (
	writeConflictCode       = 112
	commitRetries           = 3
	labelTransientTxn       = "TransientTransactionError"
	labelUnknownCommitState = "UnknownTransactionCommitResult"
)

// MongoStore implements Store on a MongoDB replica set
type MongoStore struct {
	db          *mongo.Database
	bancos      BancoRepository
	movimientos MovimientoRepository
	logger      *logrus.Logger
}

// NewMongoStore wires the repositories of db into a Store
func NewMongoStore(db *mongo.Database, logger *logrus.Logger) *MongoStore {
	return &MongoStore{
		db:          db,
		bancos:      NewBancoRepository(db, logger),
		movimientos: NewMovimientoRepository(db),
		logger:      logger,
	}
}

func (s *MongoStore) Bancos() BancoRepository { return s.bancos }

func (s *MongoStore) Movimientos() MovimientoRepository { return s.movimientos }

// WithTransaction runs fn in a snapshot transaction. Transient failures are
// not retried here: they are reported as ErrTransactionConflict and the
// caller decides how many attempts to make.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())

	err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(txnOpts); err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if err := fn(sc); err != nil {
			if abortErr := session.AbortTransaction(context.Background()); abortErr != nil {
				s.logger.WithError(abortErr).Warn("Failed to abort transaction")
			}
			return err
		}

		return commit(sc, session)
	})

	return classifyTransactionError(err)
}

func commit(sc mongo.SessionContext, session mongo.Session) error {
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		err = session.CommitTransaction(sc)
		if err == nil {
			return nil
		}

		var serverErr mongo.ServerError
		if !errors.As(err, &serverErr) || !serverErr.HasErrorLabel(labelUnknownCommitState) {
			return err
		}
	}
	return err
}

func classifyTransactionError(err error) error {
	if err == nil {
		return nil
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) &&
		(serverErr.HasErrorLabel(labelTransientTxn) || serverErr.HasErrorCode(writeConflictCode)) {
		return fmt.Errorf("%w: %v", models.ErrTransactionConflict, err)
	}
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the indexes the movement queries rely on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bancoId", Value: 1}, {Key: "tipo", Value: 1}, {Key: "fecha", Value: -1}},
			Options: options.Index().SetName("banco_tipo_fecha"),
		},
		{
			Keys:    bson.D{{Key: "transferenciaId", Value: 1}},
			Options: options.Index().SetName("transferencia").SetSparse(true),
		},
	}

	if _, err := s.db.Collection(movimientosCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create movimientos indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) WatchMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) (ChangeFeed, error) {
	match := bson.D{{Key: "fullDocument.bancoId", Value: bancoID}}
	if tipo != "" {
		match = append(match, bson.E{Key: "fullDocument.tipo", Value: string(tipo)})
	}

	// Deleted documents carry no fullDocument, so every delete wakes the feed.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			match,
			bson.D{{Key: "operationType", Value: "delete"}},
		}}}}},
	}

	return s.watch(ctx, s.db.Collection(movimientosCollection), pipeline)
}

func (s *MongoStore) WatchBanco(ctx context.Context, bancoID string) (ChangeFeed, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: bancoID}}}},
	}
	return s.watch(ctx, s.db.Collection(bancosCollection), pipeline)
}

func (s *MongoStore) watch(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) (ChangeFeed, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream on %s: %w", coll.Name(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	feed := &streamFeed{
		changes: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go feed.run(ctx, stream)
	return feed, nil
}

type streamFeed struct {
	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func (f *streamFeed) run(ctx context.Context, stream *mongo.ChangeStream) {
	defer close(f.done)
	defer close(f.changes)
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		select {
		case f.changes <- struct{}{}:
		default:
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
	}
}

func (f *streamFeed) Changes() <-chan struct{} { return f.changes }

func (f *streamFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *streamFeed) Close() error {
	f.cancel()
	<-f.done
	return nil
}
