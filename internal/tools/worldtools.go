package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/world"
)

// updateWorldEntity merges a fact into the world model through the
// resolution rules in the world package.
func (d *Dispatcher) updateWorldEntity(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	category := models.Category(argString(args, "category"))
	if !models.ValidCategories[category] {
		return "", fmt.Errorf("unknown category %q (want npc, location, quest or event)", category)
	}
	name := argString(args, "name")
	if world.NormalizeKey(name) == "" {
		return "", fmt.Errorf("update_world_entity requires a name with at least one letter or digit")
	}

	extra := make(map[string]string)
	if raw, ok := args["attributes"].(map[string]interface{}); ok {
		for k, v := range raw {
			switch k {
			case "aliases", "memory_add":
				// Handled via dedicated fields below.
			default:
				extra[k] = fmt.Sprintf("%v", v)
			}
		}
	}

	upd := world.Update{
		Name:      name,
		Details:   argString(args, "details"),
		Status:    argString(args, "status"),
		Aliases:   argStringSlice(args, "aliases"),
		MemoryAdd: argString(args, "memory_add"),
		Extra:     extra,
	}
	if raw, ok := args["attributes"].(map[string]interface{}); ok {
		if len(upd.Aliases) == 0 {
			upd.Aliases = argStringSlice(raw, "aliases")
		}
		if upd.MemoryAdd == "" {
			upd.MemoryAdd = argString(raw, "memory_add")
		}
	}

	key := world.Apply(inv.World, category, upd)
	inv.recordWorldMutation(func(w *models.WorldState) error {
		world.Apply(w, category, upd)
		return nil
	})
	return fmt.Sprintf("Recorded %s %q (key %s).", category, name, key), nil
}

func (d *Dispatcher) updateEnvironment(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	timeStr := argString(args, "time")
	weather := argString(args, "weather")
	minutes, _ := argInt(args, "minutes_passed")

	if err := world.AdvanceEnvironment(inv.World, timeStr, weather, minutes); err != nil {
		return "", err
	}
	inv.recordWorldMutation(func(w *models.WorldState) error {
		return world.AdvanceEnvironment(w, timeStr, weather, minutes)
	})
	env := inv.World.Environment
	return fmt.Sprintf("Environment updated: %s, %s.", env.Clock, env.Weather), nil
}

func (d *Dispatcher) manageStoryLog(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	action := argString(args, "action")
	note := argString(args, "note")
	if note == "" {
		return "", fmt.Errorf("manage_story_log requires a note")
	}

	switch action {
	case "add":
		at := time.Now()
		world.AddStoryNote(inv.World, note, at)
		inv.recordWorldMutation(func(w *models.WorldState) error {
			world.AddStoryNote(w, note, at)
			return nil
		})
		return fmt.Sprintf("Story note added: %s", note), nil
	case "resolve":
		status := argString(args, "status")
		n := world.ResolveStoryNotes(inv.World, note, status)
		inv.recordWorldMutation(func(w *models.WorldState) error {
			world.ResolveStoryNotes(w, note, status)
			return nil
		})
		if n == 0 {
			return fmt.Sprintf("No open story notes match %q.", note), nil
		}
		return fmt.Sprintf("Resolved %d story note(s) matching %q.", n, note), nil
	default:
		return "", fmt.Errorf("manage_story_log action must be add or resolve")
	}
}

func (d *Dispatcher) updateJournal(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	entry := argString(args, "log_entry")
	if entry == "" {
		return "", fmt.Errorf("update_journal requires a log_entry")
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04"), entry)
	inv.Session.CampaignLog += line
	return "Journal updated.", nil
}
