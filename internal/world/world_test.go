package world

import (
	"strings"
	"testing"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Captain Aldric", "captain_aldric"},
		{"  The Rusty Anchor  ", "the_rusty_anchor"},
		{"Mara's Hideout!", "mara_s_hideout"},
		{"UPPER", "upper"},
	}
	for _, c := range cases {
		if got := NormalizeKey(c.in); got != c.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestApply_NPCDedup(t *testing.T) {
	w := models.NewWorldState("s1")

	Apply(w, models.CategoryNPC, Update{Name: "Annabeth", Details: "A scarred mercenary captain from the northern reaches"})
	// Exact name.
	Apply(w, models.CategoryNPC, Update{Name: "Annabeth", Status: "wounded"})
	// Alias.
	Apply(w, models.CategoryNPC, Update{Name: "Annabeth", Aliases: []string{"The Captain"}})
	Apply(w, models.CategoryNPC, Update{Name: "The Captain", Status: "recovering"})
	// Fuzzy substring.
	Apply(w, models.CategoryNPC, Update{Name: "Anna", Aliases: []string{"Anna"}})

	if len(w.NPCs) != 1 {
		t.Fatalf("expected 1 NPC after merges, got %d: %v", len(w.NPCs), keys(w.NPCs))
	}
	e := w.NPCs["annabeth"]
	if e == nil {
		t.Fatal("canonical key annabeth missing")
	}
	if e.Status != "recovering" {
		t.Errorf("status = %q, want recovering", e.Status)
	}
	if len(e.Attributes.Aliases) != 2 {
		t.Errorf("aliases = %v, want union of 2", e.Attributes.Aliases)
	}
}

func TestApply_AliasUnionDedup(t *testing.T) {
	w := models.NewWorldState("s1")
	Apply(w, models.CategoryNPC, Update{Name: "Mara", Aliases: []string{"The Fox", "the fox", "Shadow"}})
	Apply(w, models.CategoryNPC, Update{Name: "Mara", Aliases: []string{"Shadow", "Vixen"}})

	e := w.NPCs["mara"]
	if got := len(e.Attributes.Aliases); got != 3 {
		t.Fatalf("aliases = %v, want 3 distinct", e.Attributes.Aliases)
	}
}

func TestApply_DetailsPreservation(t *testing.T) {
	long := strings.Repeat("An ancient order of knights sworn to the old king. ", 2)
	w := models.NewWorldState("s1")
	Apply(w, models.CategoryNPC, Update{Name: "Aldric", Details: long})

	// Short update must not shrink established lore.
	Apply(w, models.CategoryNPC, Update{Name: "Aldric", Details: "a knight"})
	if got := w.NPCs["aldric"].Details; got != long {
		t.Fatalf("short update overwrote long details: %q", got)
	}

	// A substantial update still replaces.
	replacement := "Aldric fell at the siege of Karth and now wanders as an oathbreaker."
	Apply(w, models.CategoryNPC, Update{Name: "Aldric", Details: replacement})
	if got := w.NPCs["aldric"].Details; got != replacement {
		t.Fatalf("substantial update did not replace details: %q", got)
	}
}

func TestApply_MemoryAddIdempotent(t *testing.T) {
	w := models.NewWorldState("s1")
	Apply(w, models.CategoryNPC, Update{Name: "Mara", MemoryAdd: "Sold the party a forged map."})
	Apply(w, models.CategoryNPC, Update{Name: "Mara", MemoryAdd: "Sold the party a forged map."})
	Apply(w, models.CategoryNPC, Update{Name: "Mara", MemoryAdd: "Fled through the sewers."})

	hist := w.NPCs["mara"].Attributes.History
	if len(hist) != 2 {
		t.Fatalf("history = %d entries, want 2 (verbatim duplicate dropped)", len(hist))
	}
}

func TestApply_NonNPCKeysByNameOnly(t *testing.T) {
	w := models.NewWorldState("s1")
	Apply(w, models.CategoryLocation, Update{Name: "Rusty Anchor"})
	// No fuzzy matching outside NPCs: a substring name creates a new record.
	Apply(w, models.CategoryLocation, Update{Name: "Anchor"})
	if len(w.Locations) != 2 {
		t.Fatalf("locations = %d, want 2 (no fuzzy merge)", len(w.Locations))
	}
}

func TestStoryNotes(t *testing.T) {
	w := models.NewWorldState("s1")
	AddStoryNote(w, "Find the stolen ledger", time.Time{})
	AddStoryNote(w, "Escort the caravan to Karth", time.Time{})

	if n := ResolveStoryNotes(w, "LEDGER", ""); n != 1 {
		t.Fatalf("resolved %d notes, want 1", n)
	}
	if w.StoryLog[0].Status != "resolved" || w.StoryLog[1].Status != "open" {
		t.Fatalf("unexpected statuses: %+v", w.StoryLog)
	}
}

func keys(m map[string]*models.Entity) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
