package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tesouraria/internal/amqp"
	"tesouraria/internal/sheets/memory"
)

func TestMirrorWorker_CreatedThenDeleted(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewMirrorWorker(mirror)

	created := &amqp.EntryEvent{
		Op:       amqp.OpCreated,
		Tenant:   "penielzn",
		EntryID:  "e-1",
		Title:    "Dízimo Maria",
		Category: "tithe",
		Value:    "300",
		Date:     "2024-03-03T10:00:00Z",
	}
	require.NoError(t, w.HandleEntryEvent(ctx, created))

	rows := mirror.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "e-1", rows[0].EntryID)
	assert.Equal(t, "penielzn", rows[0].Tenant)
	assert.Equal(t, "Dízimo Maria", rows[0].Title)

	deleted := &amqp.EntryEvent{
		Op:      amqp.OpDeleted,
		Tenant:  "penielzn",
		EntryID: "e-1",
	}
	require.NoError(t, w.HandleEntryEvent(ctx, deleted))
	assert.Empty(t, mirror.Rows())
}

func TestMirrorWorker_UnknownOpIsDropped(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewMirrorWorker(mirror)

	err := w.HandleEntryEvent(ctx, &amqp.EntryEvent{Op: "renamed", EntryID: "e-2"})
	assert.NoError(t, err)
	assert.Empty(t, mirror.Rows())
}

func TestMirrorWorker_DeleteForOtherTenantKeepsRow(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewMirrorWorker(mirror)

	require.NoError(t, w.HandleEntryEvent(ctx, &amqp.EntryEvent{
		Op: amqp.OpCreated, Tenant: "penielzn", EntryID: "e-1", Title: "Oferta", Category: "offering", Value: "80",
	}))

	require.NoError(t, w.HandleEntryEvent(ctx, &amqp.EntryEvent{
		Op: amqp.OpDeleted, Tenant: "other", EntryID: "e-1",
	}))
	assert.Len(t, mirror.Rows(), 1)
}
