// Package memory is an in-process Mirror, used in tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"sync"

	"tesouraria/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows []sheets.EntryRow
}

var _ sheets.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

func (m *Mirror) AppendEntry(_ context.Context, row sheets.EntryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *Mirror) RemoveEntry(_ context.Context, tenantID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.Tenant == tenantID && row.EntryID == entryID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of the mirrored rows.
func (m *Mirror) Rows() []sheets.EntryRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sheets.EntryRow, len(m.rows))
	copy(out, m.rows)
	return out
}
