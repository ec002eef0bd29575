package models

import (
	"time"
)

// Category tags a world entity. New facts about a known entity must merge
// into the existing record, never create a duplicate.
type Category string

const (
	CategoryNPC      Category = "npc"
	CategoryLocation Category = "location"
	CategoryQuest    Category = "quest"
	CategoryEvent    Category = "event"
)

// ValidCategories lists the accepted entity categories.
var ValidCategories = map[Category]bool{
	CategoryNPC:      true,
	CategoryLocation: true,
	CategoryQuest:    true,
	CategoryEvent:    true,
}

// WorldState holds the categorized facts about a session's fictional world.
type WorldState struct {
	SessionID   string             `gorm:"primaryKey" json:"session_id"`
	Environment Environment        `gorm:"serializer:json" json:"environment"`
	NPCs        map[string]*Entity `gorm:"serializer:json" json:"npcs"`
	Locations   map[string]*Entity `gorm:"serializer:json" json:"locations"`
	Quests      map[string]*Entity `gorm:"serializer:json" json:"quests"`
	Events      map[string]*Entity `gorm:"serializer:json" json:"events"`
	StoryLog    []StoryNote        `gorm:"serializer:json" json:"story_log"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Environment is the in-world clock and weather.
type Environment struct {
	Clock     string    `json:"clock"` // HH:MM
	Weather   string    `json:"weather"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is one canonical record within a category.
type Entity struct {
	Name        string           `json:"name"`
	Details     string           `json:"details"`
	Status      string           `json:"status"`
	LastUpdated time.Time        `json:"last_updated"`
	Attributes  EntityAttributes `json:"attributes"`
}

// EntityAttributes is the open attribute bag on an entity. History is
// append-only; Aliases is a merged, deduplicated set.
type EntityAttributes struct {
	History []HistoryLine     `json:"history,omitempty"`
	Aliases []string          `json:"aliases,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// HistoryLine is one timestamped memory fragment on an entity.
type HistoryLine struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// StoryNote is one free-form story-log entry.
type StoryNote struct {
	Note      string    `json:"note"`
	Status    string    `json:"status"` // "open" | "resolved"
	CreatedAt time.Time `json:"created_at"`
}

// Entities returns the entity map for the given category.
func (w *WorldState) Entities(cat Category) map[string]*Entity {
	switch cat {
	case CategoryNPC:
		return w.NPCs
	case CategoryLocation:
		return w.Locations
	case CategoryQuest:
		return w.Quests
	case CategoryEvent:
		return w.Events
	}
	return nil
}

// NewWorldState returns an empty world state for a session.
func NewWorldState(sessionID string) *WorldState {
	return &WorldState{
		SessionID: sessionID,
		Environment: Environment{
			Clock:   "08:00",
			Weather: "clear",
		},
		NPCs:      make(map[string]*Entity),
		Locations: make(map[string]*Entity),
		Quests:    make(map[string]*Entity),
		Events:    make(map[string]*Entity),
	}
}
