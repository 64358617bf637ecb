package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StorageDateOffset compensates for the timezone in which dates were
// historically written to the store. It is applied exactly once, when a
// stored date string is decoded; dates already carried as time.Time
// values are canonical and are never corrected again.
const StorageDateOffset = 3 * time.Hour

// Stored date layouts, in the order they are attempted.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalize converts one raw stored record into a canonical Entry.
// It never fails: unparseable dates leave the zero date (the entry then
// matches no period), non-numeric values coerce to zero, and a missing
// id gets a fresh one assigned (the store is not touched).
func Normalize(raw map[string]any) Entry {
	e := Entry{
		Category: stringField(raw, "category"),
		Title:    stringField(raw, "title"),
		Value:    coerceValue(raw["value"]),
	}

	e.ID = stringField(raw, "id")
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	switch d := raw["date"].(type) {
	case time.Time:
		e.Date = d
	case string:
		e.Date = decodeStoredDate(d)
	}

	return e
}

// Record is the exact inverse of Normalize for a canonical entry; a
// write followed by a read yields an equal Entry.
func (e Entry) Record() map[string]any {
	return map[string]any{
		"id":       e.ID,
		"date":     encodeStoredDate(e.Date),
		"category": e.Category,
		"title":    e.Title,
		"value":    e.Value.String(),
	}
}

func decodeStoredDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Add(StorageDateOffset)
		}
	}
	return time.Time{}
}

func encodeStoredDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Add(-StorageDateOffset).UTC().Format(time.RFC3339)
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func coerceValue(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
			return d
		}
	}
	return decimal.Zero
}
