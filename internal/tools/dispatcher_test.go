package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
)

func newInvocation(storyMode bool) *Invocation {
	return &Invocation{
		Session: &models.Session{
			ID:      "s1",
			Players: []string{"p1"},
			PlayerStats: map[string]*models.CharacterSheet{
				"p1": {Name: "Kael", HP: 100, MaxHP: 100, MP: 50, MaxMP: 50},
			},
			Active:    true,
			StoryMode: storyMode,
		},
		World: models.NewWorldState("s1"),
	}
}

func exec(t *testing.T, d *Dispatcher, inv *Invocation, name string, args map[string]interface{}) string {
	t.Helper()
	return d.Execute(context.Background(), inv, interfaces.ToolCall{Name: name, Args: args})
}

func TestUnknownTool(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	out := exec(t, d, newInvocation(false), "summon_dragon", nil)
	if !strings.Contains(out, "unknown tool") {
		t.Fatalf("got %q, want unknown tool error string", out)
	}
}

func TestApplyDamage_Clamped(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)

	exec(t, d, inv, "apply_damage", map[string]interface{}{"target": "p1", "amount": float64(15)})
	if hp := inv.Session.PlayerStats["p1"].HP; hp != 85 {
		t.Fatalf("hp = %d, want 85", hp)
	}

	exec(t, d, inv, "apply_damage", map[string]interface{}{"target": "p1", "amount": float64(999)})
	if hp := inv.Session.PlayerStats["p1"].HP; hp != 0 {
		t.Fatalf("hp = %d, want clamped to 0", hp)
	}

	exec(t, d, inv, "apply_healing", map[string]interface{}{"target": "p1", "amount": float64(999)})
	if hp := inv.Session.PlayerStats["p1"].HP; hp != 100 {
		t.Fatalf("hp = %d, want clamped to max 100", hp)
	}
}

func TestApplyDamage_UnknownTarget(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	out := exec(t, d, newInvocation(false), "apply_damage", map[string]interface{}{"target": "ghost", "amount": float64(5)})
	if !strings.Contains(out, "Error") {
		t.Fatalf("got %q, want error string", out)
	}
}

func TestStoryMode_SuppressesMechanics(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(true)

	for _, call := range []struct {
		name string
		args map[string]interface{}
	}{
		{"apply_damage", map[string]interface{}{"target": "p1", "amount": float64(40)}},
		{"apply_healing", map[string]interface{}{"target": "p1", "amount": float64(40)}},
		{"deduct_mana", map[string]interface{}{"target": "p1", "amount": float64(40)}},
		{"roll_d20", map[string]interface{}{"check_type": "attack", "difficulty": float64(10)}},
	} {
		out := exec(t, d, inv, call.name, call.args)
		if !strings.Contains(out, "story mode") {
			t.Errorf("%s: got %q, want story mode notice", call.name, out)
		}
		if strings.Contains(out, "Error") {
			t.Errorf("%s: story mode must not be an error, got %q", call.name, out)
		}
	}

	sheet := inv.Session.PlayerStats["p1"]
	if sheet.HP != 100 || sheet.MP != 50 {
		t.Fatalf("vitals changed in story mode: hp=%d mp=%d", sheet.HP, sheet.MP)
	}
}

func TestRollD20_LockedOnReroll(t *testing.T) {
	mem := storage.NewMemoryStore()
	d := NewDispatcher(mem)
	ctx := context.Background()

	inv := newInvocation(false)
	first := exec(t, d, inv, "roll_d20", map[string]interface{}{"check_type": "attack", "difficulty": float64(12)})
	if !strings.Contains(first, "Rolled d20 for attack") {
		t.Fatalf("unexpected roll result: %q", first)
	}

	locked, err := mem.Locked(ctx, "s1")
	if err != nil || locked != first {
		t.Fatalf("locked = %q err = %v, want the original roll", locked, err)
	}

	inv.IsReroll = true
	second := exec(t, d, inv, "roll_d20", map[string]interface{}{"check_type": "attack", "difficulty": float64(12)})
	if !strings.Contains(second, first) {
		t.Fatalf("reroll produced a new roll:\n first=%q\nsecond=%q", first, second)
	}
}

func TestGrantItem_DuplicatesAllowed(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)
	args := map[string]interface{}{"target": "p1", "item": "Silver Key"}
	exec(t, d, inv, "grant_item_to_player", args)
	exec(t, d, inv, "grant_item_to_player", args)
	if n := len(inv.Session.PlayerStats["p1"].Inventory); n != 2 {
		t.Fatalf("inventory = %d items, want 2 (duplicates allowed)", n)
	}
}

func TestUpdateWorldEntity(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)

	out := exec(t, d, inv, "update_world_entity", map[string]interface{}{
		"category": "npc",
		"name":     "Mara",
		"details":  "A fence operating out of the harbor district.",
		"attributes": map[string]interface{}{
			"aliases":    []interface{}{"The Fox"},
			"memory_add": "Met the party at the Rusty Anchor.",
			"faction":    "Harbor Guild",
		},
	})
	if strings.Contains(out, "Error") {
		t.Fatal(out)
	}

	e := inv.World.NPCs["mara"]
	if e == nil {
		t.Fatal("npc not recorded")
	}
	if len(e.Attributes.Aliases) != 1 || len(e.Attributes.History) != 1 {
		t.Fatalf("attributes not merged: %+v", e.Attributes)
	}
	if e.Attributes.Extra["faction"] != "Harbor Guild" {
		t.Fatalf("extra attribute lost: %+v", e.Attributes.Extra)
	}

	out = exec(t, d, inv, "update_world_entity", map[string]interface{}{"category": "artifact", "name": "x"})
	if !strings.Contains(out, "Error") {
		t.Fatalf("invalid category accepted: %q", out)
	}
}

func TestUpdateWorldEntity_PunctuationOnlyName(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)

	out := exec(t, d, inv, "update_world_entity", map[string]interface{}{"category": "npc", "name": "!!!"})
	if !strings.Contains(out, "Error") {
		t.Fatalf("punctuation-only name accepted: %q", out)
	}
	if _, ok := inv.World.NPCs[""]; ok {
		t.Fatal("entity recorded under the empty key")
	}
}

func TestUpdateEnvironmentAndJournal(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)

	out := exec(t, d, inv, "update_environment", map[string]interface{}{
		"time": "Auto", "weather": "rain", "minutes_passed": float64(75),
	})
	if !strings.Contains(out, "09:15") {
		t.Fatalf("clock not advanced: %q", out)
	}

	exec(t, d, inv, "update_journal", map[string]interface{}{"log_entry": "The party reached the harbor."})
	if !strings.Contains(inv.Session.CampaignLog, "The party reached the harbor.") {
		t.Fatalf("journal missing entry: %q", inv.Session.CampaignLog)
	}
}

func TestManageStoryLog(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryStore())
	inv := newInvocation(false)

	exec(t, d, inv, "manage_story_log", map[string]interface{}{"action": "add", "note": "Find the stolen ledger"})
	out := exec(t, d, inv, "manage_story_log", map[string]interface{}{"action": "resolve", "note": "ledger"})
	if !strings.Contains(out, "Resolved 1") {
		t.Fatalf("resolve failed: %q", out)
	}
	if inv.World.StoryLog[0].Status != "resolved" {
		t.Fatalf("note not resolved: %+v", inv.World.StoryLog[0])
	}
}
