// Package sheets defines the audit mirror port. The mirror is a
// write-behind copy of the ledger kept for the treasurer.
package sheets

import "context"

// EntryRow is one mirrored ledger entry, already formatted for the
// sheet.
type EntryRow struct {
	Tenant   string
	EntryID  string
	Date     string
	Category string
	Title    string
	Value    string
}

// Mirror appends and removes ledger rows on the audit copy.
type Mirror interface {
	AppendEntry(ctx context.Context, row EntryRow) error
	RemoveEntry(ctx context.Context, tenantID, entryID string) error
}
