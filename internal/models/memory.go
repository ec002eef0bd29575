package models

import (
	"time"
)

// Provenance tags where an archival memory fragment came from.
type Provenance string

const (
	ProvenanceArchivedHistory Provenance = "archived_history"
	ProvenanceHistoricalSync  Provenance = "historical_sync"
)

// MemoryFragment is a chunk of older turn text or entity history stored
// for similarity retrieval. Fragments are never mutated; they are deleted
// only on session deletion, resync, or a rewind purge.
type MemoryFragment struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	TurnID     int        `json:"turn_id"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	Provenance Provenance `json:"provenance"`
}
