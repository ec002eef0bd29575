package tools

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
)

// Schemas returns the tool schemas advertised to the oracle on every
// turn call.
func Schemas() []interfaces.ToolSchema {
	return []interfaces.ToolSchema{
		{
			Name:        "roll_d20",
			Description: "Roll 1d20 plus a modifier against a difficulty for a skill check, attack or save.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"check_type": {Type: jsonschema.String, Description: "What the roll is for, e.g. attack, stealth, persuasion."},
					"difficulty": {Type: jsonschema.Integer, Description: "Difficulty class the total must meet or beat."},
					"modifier":   {Type: jsonschema.Integer, Description: "Bonus or penalty added to the roll."},
				},
				Required: []string{"check_type", "difficulty"},
			},
		},
		{
			Name:        "apply_damage",
			Description: "Apply damage to a participant's hit points.",
			Parameters:  vitalsSchema("Damage dealt."),
		},
		{
			Name:        "apply_healing",
			Description: "Restore a participant's hit points.",
			Parameters:  vitalsSchema("Hit points restored."),
		},
		{
			Name:        "deduct_mana",
			Description: "Spend a participant's mana points.",
			Parameters:  vitalsSchema("Mana spent."),
		},
		{
			Name:        "grant_item_to_player",
			Description: "Add an item to a participant's inventory.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"target": {Type: jsonschema.String, Description: "Participant id receiving the item."},
					"item":   {Type: jsonschema.String, Description: "Item name."},
				},
				Required: []string{"target", "item"},
			},
		},
		{
			Name:        "update_world_entity",
			Description: "Record or update a fact about an NPC, location, quest or event. Known entities are merged, never duplicated.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"category":   {Type: jsonschema.String, Enum: []string{"npc", "location", "quest", "event"}},
					"name":       {Type: jsonschema.String, Description: "Entity name."},
					"details":    {Type: jsonschema.String, Description: "Description of the entity."},
					"status":     {Type: jsonschema.String, Description: "Current status, e.g. alive, completed, destroyed."},
					"aliases":    {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}, Description: "Other names this entity goes by."},
					"memory_add": {Type: jsonschema.String, Description: "A new memory fragment to append to the entity's history."},
				},
				Required: []string{"category", "name"},
			},
		},
		{
			Name:        "update_environment",
			Description: "Advance or set the in-world clock and weather.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"time":           {Type: jsonschema.String, Description: "Literal HH:MM, or \"Auto\" to advance by minutes_passed."},
					"weather":        {Type: jsonschema.String, Description: "Current weather."},
					"minutes_passed": {Type: jsonschema.Integer, Description: "Minutes to add to the clock, wrapping past midnight."},
				},
			},
		},
		{
			Name:        "manage_story_log",
			Description: "Add an open plot note, or resolve notes matching a substring.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"action": {Type: jsonschema.String, Enum: []string{"add", "resolve"}},
					"note":   {Type: jsonschema.String, Description: "Note text, or the substring to resolve."},
					"status": {Type: jsonschema.String, Description: "Status to set when resolving."},
				},
				Required: []string{"action", "note"},
			},
		},
		{
			Name:        "update_journal",
			Description: "Append a timestamped line to the campaign journal.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"log_entry": {Type: jsonschema.String, Description: "Journal line."},
				},
				Required: []string{"log_entry"},
			},
		},
	}
}

// ScribeSchemas limits the scribe's extraction pass to world bookkeeping.
func ScribeSchemas() []interfaces.ToolSchema {
	var out []interfaces.ToolSchema
	for _, s := range Schemas() {
		if s.Name == "update_world_entity" || s.Name == "manage_story_log" {
			out = append(out, s)
		}
	}
	return out
}

func vitalsSchema(amountDesc string) jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"target": {Type: jsonschema.String, Description: "Participant id."},
			"amount": {Type: jsonschema.Integer, Description: amountDesc},
		},
		Required: []string{"target", "amount"},
	}
}
