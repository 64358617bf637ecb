package amqp

import (
	"encoding/json"
	"time"
)

// Entry event operations.
const (
	OpCreated = "created"
	OpDeleted = "deleted"
)

// EntryEvent announces a ledger entry change. It carries the stored
// field values so the mirror worker can act without a store round trip
// (deleted entries are no longer readable).
type EntryEvent struct {
	Op        string    `json:"op"`
	Tenant    string    `json:"tenant"`
	EntryID   string    `json:"entry_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Value     string    `json:"value"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *EntryEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryEventFromJSON(data []byte) (*EntryEvent, error) {
	var msg EntryEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChangeEvent tells other server instances that the subtree at Path
// changed and their subscribers should re-read. Origin identifies the
// publishing client so it can skip its own events.
type ChangeEvent struct {
	Path      string    `json:"path"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
