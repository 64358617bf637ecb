package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalize_DateCorrection(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		want     time.Time
		wantZero bool
	}{
		{
			name: "stored ISO string gets the three hour correction",
			raw:  "2024-03-15T00:00:00Z",
			want: time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "bare date string",
			raw:  "2024-03-15",
			want: time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "late evening rolls into next calendar day",
			raw:  "2024-03-31T22:30:00Z",
			want: time.Date(2024, 4, 1, 1, 30, 0, 0, time.UTC),
		},
		{
			name: "canonical time value is not corrected again",
			raw:  time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "garbage is marked invalid instead of failing",
			raw:      "not-a-date",
			wantZero: true,
		},
		{
			name:     "missing date is marked invalid",
			raw:      nil,
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Normalize(map[string]any{
				"date":     tt.raw,
				"category": "tithe",
				"title":    "Dízimo",
				"value":    100.0,
			})
			if tt.wantZero {
				if e.DateValid() {
					t.Errorf("date %v should be invalid", e.Date)
				}
				return
			}
			if !e.Date.Equal(tt.want) {
				t.Errorf("date = %v, want %v", e.Date, tt.want)
			}
		})
	}
}

func TestNormalize_ValueCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{name: "float", raw: 123.45, want: "123.45"},
		{name: "int", raw: 50, want: "50"},
		{name: "numeric string", raw: "99.90", want: "99.9"},
		{name: "json number", raw: json.Number("10.05"), want: "10.05"},
		{name: "non-numeric string", raw: "abc", want: "0"},
		{name: "missing", raw: nil, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Normalize(map[string]any{"value": tt.raw})
			if e.Value.String() != tt.want {
				t.Errorf("value = %s, want %s", e.Value, tt.want)
			}
		})
	}
}

func TestNormalize_AssignsID(t *testing.T) {
	e := Normalize(map[string]any{"title": "Oferta"})
	if e.ID == "" {
		t.Fatal("expected a generated id")
	}
	other := Normalize(map[string]any{"title": "Oferta"})
	if e.ID == other.ID {
		t.Error("generated ids must be unique")
	}

	kept := Normalize(map[string]any{"id": "abc-123"})
	if kept.ID != "abc-123" {
		t.Errorf("id = %q, want existing id preserved", kept.ID)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	e := Normalize(map[string]any{
		"id":       "e1",
		"date":     "2024-03-15T00:00:00Z",
		"category": "tithe",
		"title":    "Dízimo",
		"value":    "100.00",
	})

	again := Normalize(map[string]any{
		"id":       e.ID,
		"date":     e.Date,
		"category": e.Category,
		"title":    e.Title,
		"value":    e.Value,
	})

	if !again.Date.Equal(e.Date) {
		t.Errorf("double correction: %v != %v", again.Date, e.Date)
	}
	if !again.Value.Equal(e.Value) {
		t.Errorf("value drifted: %s != %s", again.Value, e.Value)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	e := Normalize(map[string]any{
		"id":       "e1",
		"date":     "2024-03-15T00:00:00Z",
		"category": "billsToPay",
		"title":    "Aluguel",
		"value":    1200.0,
	})

	back := Normalize(e.Record())
	if back.ID != e.ID || !back.Date.Equal(e.Date) || back.Category != e.Category ||
		back.Title != e.Title || !back.Value.Equal(e.Value) {
		t.Errorf("round trip changed the entry:\n got %+v\nwant %+v", back, e)
	}
}

func TestRecord_InvalidDateStaysEmpty(t *testing.T) {
	e := Normalize(map[string]any{"id": "x", "date": "garbage"})
	rec := e.Record()
	if rec["date"] != "" {
		t.Errorf("invalid date serialized as %q, want empty", rec["date"])
	}
}
