// Package worker mirrors ledger entry events onto the audit
// spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tesouraria/internal/amqp"
	"tesouraria/internal/sheets"
)

// MirrorWorker applies entry events to the audit mirror.
type MirrorWorker struct {
	mirror sheets.Mirror
}

func NewMirrorWorker(mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{mirror: mirror}
}

// HandleEntryEvent processes a single event from the bus. Failures are
// returned so the consumer can requeue the delivery.
func (w *MirrorWorker) HandleEntryEvent(ctx context.Context, msg *amqp.EntryEvent) error {
	slog.InfoContext(ctx, "Processing entry event",
		"op", msg.Op,
		"tenant", msg.Tenant,
		"entry_id", msg.EntryID)

	switch msg.Op {
	case amqp.OpCreated:
		row := sheets.EntryRow{
			Tenant:   msg.Tenant,
			EntryID:  msg.EntryID,
			Date:     msg.Date,
			Category: msg.Category,
			Title:    msg.Title,
			Value:    msg.Value,
		}
		if err := w.mirror.AppendEntry(ctx, row); err != nil {
			return fmt.Errorf("append mirrored entry: %w", err)
		}

	case amqp.OpDeleted:
		if err := w.mirror.RemoveEntry(ctx, msg.Tenant, msg.EntryID); err != nil {
			return fmt.Errorf("remove mirrored entry: %w", err)
		}

	default:
		// Unknown ops are dropped, not requeued.
		slog.WarnContext(ctx, "Unknown entry event op", "op", msg.Op, "entry_id", msg.EntryID)
	}

	return nil
}
