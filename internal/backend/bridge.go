package backend

import (
	"context"
	"errors"
	"log/slog"

	"tesouraria/internal/amqp"
	"tesouraria/internal/store"
)

// invalidatingStore is a store that can be poked about external writes.
type invalidatingStore interface {
	store.Store
	store.Invalidator
}

// bridgedStore wraps a store so that local mutations are announced on
// the message bus and foreign mutations wake local subscribers.
type bridgedStore struct {
	invalidatingStore

	client *amqp.Client
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

func newBridgedStore(inner invalidatingStore, client *amqp.Client, logger *slog.Logger) *bridgedStore {
	ctx, cancel := context.WithCancel(context.Background())
	b := &bridgedStore{
		invalidatingStore: inner,
		client:            client,
		cancel:            cancel,
		done:              make(chan struct{}),
		logger:            logger,
	}
	go b.consume(ctx)
	return b
}

func (b *bridgedStore) consume(ctx context.Context) {
	defer close(b.done)
	err := b.client.ConsumeChanges(ctx, b.Invalidate)
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Change consumer stopped", "error", err)
	}
}

func (b *bridgedStore) announce(ctx context.Context, path string) {
	if err := b.client.PublishChange(ctx, path); err != nil {
		b.logger.Warn("Failed to publish change event", "path", path, "error", err)
	}
}

func (b *bridgedStore) Write(ctx context.Context, path string, record store.Record) (string, error) {
	id, err := b.invalidatingStore.Write(ctx, path, record)
	if err == nil {
		b.announce(ctx, path)
	}
	return id, err
}

func (b *bridgedStore) Put(ctx context.Context, path string, value any) error {
	err := b.invalidatingStore.Put(ctx, path, value)
	if err == nil {
		b.announce(ctx, path)
	}
	return err
}

func (b *bridgedStore) Remove(ctx context.Context, path string) error {
	err := b.invalidatingStore.Remove(ctx, path)
	if err == nil {
		b.announce(ctx, path)
	}
	return err
}

func (b *bridgedStore) Close() error {
	b.cancel()
	<-b.done
	b.client.Close()
	return b.invalidatingStore.Close()
}
