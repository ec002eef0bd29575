package models

import (
	"time"
)

// Session represents one long-lived role-play campaign.
type Session struct {
	ID              string                     `gorm:"primaryKey" json:"id"`
	OwnerID         string                     `json:"owner_id"`
	Players         []string                   `gorm:"serializer:json" json:"players"`
	PlayerStats     map[string]*CharacterSheet `gorm:"serializer:json" json:"player_stats"`
	Scenario        string                     `json:"scenario"`
	Lore            string                     `json:"lore"`
	Active          bool                       `json:"active"`
	StoryMode       bool                       `json:"story_mode"`
	DeleteRequested bool                       `json:"delete_requested"`
	TotalTurns      int                        `json:"total_turns"`
	CampaignLog     string                     `json:"campaign_log"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// CharacterSheet holds a participant's character data.
type CharacterSheet struct {
	Name       string            `json:"name"`
	Class      string            `json:"class"`
	HP         int               `json:"hp"`
	MaxHP      int               `json:"max_hp"`
	MP         int               `json:"mp"`
	MaxMP      int               `json:"max_mp"`
	Stats      map[string]int    `json:"stats,omitempty"`
	Skills     []string          `json:"skills,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Inventory  []ItemGrant       `json:"inventory,omitempty"`
}

// ItemGrant is one item handed to a player. Duplicates are allowed;
// dedup is the caller's concern.
type ItemGrant struct {
	Name      string    `json:"name"`
	GrantedAt time.Time `json:"granted_at"`
}

// Turn is one user input paired with the narrative produced for it.
// TurnID is sequential and gapless within an active session.
type Turn struct {
	SessionID     string    `gorm:"primaryKey;index" json:"session_id"`
	TurnID        int       `gorm:"primaryKey" json:"turn_id"`
	Input         string    `json:"input"`
	Output        string    `json:"output"`
	UserMessageID string    `json:"user_message_id,omitempty"`
	BotMessageIDs []string  `gorm:"serializer:json" json:"bot_message_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
