package memory

import (
	"context"
	"sort"
	"sync"

	"chronos-api/internal/models"
	"chronos-api/internal/repository"
)

type feedKind int

const (
	feedMovimientos feedKind = iota
	feedBanco
)

type feed struct {
	store   *Store
	kind    feedKind
	bancoID string
	tipo    models.TipoMovimiento

	changes chan struct{}
	once    sync.Once
	stop    context.CancelFunc
}

func (s *Store) WatchMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) (repository.ChangeFeed, error) {
	return s.register(ctx, &feed{kind: feedMovimientos, bancoID: bancoID, tipo: tipo})
}

func (s *Store) WatchBanco(ctx context.Context, bancoID string) (repository.ChangeFeed, error) {
	return s.register(ctx, &feed{kind: feedBanco, bancoID: bancoID})
}

func (s *Store) register(ctx context.Context, f *feed) (repository.ChangeFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.store = s
	f.changes = make(chan struct{}, 1)

	s.feedsMu.Lock()
	s.feeds[f] = struct{}{}
	s.feedsMu.Unlock()

	ctx, f.stop = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	return f, nil
}

func (s *Store) notify(changes []change) {
	if len(changes) == 0 {
		return
	}

	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()

	for f := range s.feeds {
		for _, c := range changes {
			if f.matches(c) {
				select {
				case f.changes <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

func (f *feed) matches(c change) bool {
	if c.bancoID != f.bancoID {
		return false
	}
	switch f.kind {
	case feedBanco:
		return c.tipo == ""
	default:
		return c.tipo != "" && (f.tipo == "" || f.tipo == c.tipo)
	}
}

func (f *feed) Changes() <-chan struct{} { return f.changes }

func (f *feed) Err() error { return nil }

func (f *feed) Close() error {
	f.once.Do(func() {
		f.stop()
		f.store.feedsMu.Lock()
		delete(f.store.feeds, f)
		close(f.changes)
		f.store.feedsMu.Unlock()
	})
	return nil
}

func sortBancos(bancos []*models.Banco) {
	sort.Slice(bancos, func(i, j int) bool { return bancos[i].ID < bancos[j].ID })
}
