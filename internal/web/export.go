package web

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// BuildExport renders a session as a standalone markdown document:
// header, lore, party roster, quest log, NPC registry, locations and
// events, then the full chronicle of surviving turns.
func BuildExport(session *models.Session, state *models.WorldState, turns []*models.Turn) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n\n", exportTitle(session)))
	b.WriteString(fmt.Sprintf("Session `%s`, %d turns, started %s.\n\n",
		session.ID, session.TotalTurns, session.CreatedAt.Format("2006-01-02")))

	if session.Lore != "" || session.Scenario != "" {
		b.WriteString("## Lore\n\n")
		if session.Scenario != "" {
			b.WriteString(session.Scenario + "\n\n")
		}
		if session.Lore != "" {
			b.WriteString(session.Lore + "\n\n")
		}
	}

	b.WriteString("## Party\n\n")
	for _, id := range sortedKeys(session.PlayerStats) {
		cs := session.PlayerStats[id]
		b.WriteString(fmt.Sprintf("- **%s** (%s) HP %d/%d, MP %d/%d\n", cs.Name, orDefault(cs.Class, "adventurer"), cs.HP, cs.MaxHP, cs.MP, cs.MaxMP))
		for _, item := range cs.Inventory {
			b.WriteString(fmt.Sprintf("  - carries %s\n", item.Name))
		}
	}
	b.WriteString("\n")

	writeEntitySection(&b, "Quest log", state.Quests)
	writeEntitySection(&b, "Dramatis personae", state.NPCs)

	if len(state.Locations) > 0 || len(state.Events) > 0 {
		b.WriteString("## Locations and events\n\n")
		writeEntityList(&b, state.Locations)
		writeEntityList(&b, state.Events)
		b.WriteString("\n")
	}

	if len(turns) > 0 {
		b.WriteString("## Chronicle\n\n")
		for _, t := range turns {
			b.WriteString(fmt.Sprintf("**Turn %d**\n\n> %s\n\n%s\n\n", t.TurnID, t.Input, t.Output))
		}
	}

	return b.String()
}

func exportTitle(session *models.Session) string {
	if session.Scenario != "" {
		if i := strings.IndexAny(session.Scenario, ".\n"); i > 0 && i < 80 {
			return session.Scenario[:i]
		}
		if len(session.Scenario) < 80 {
			return session.Scenario
		}
	}
	return "Campaign " + session.ID
}

func writeEntitySection(b *strings.Builder, title string, entities map[string]*models.Entity) {
	if len(entities) == 0 {
		return
	}
	b.WriteString("## " + title + "\n\n")
	writeEntityList(b, entities)
	b.WriteString("\n")
}

func writeEntityList(b *strings.Builder, entities map[string]*models.Entity) {
	for _, k := range sortedEntityKeys(entities) {
		e := entities[k]
		line := "- **" + e.Name + "**"
		if e.Status != "" {
			line += " (" + e.Status + ")"
		}
		if e.Details != "" {
			line += ": " + e.Details
		}
		b.WriteString(line + "\n")
		for _, h := range e.Attributes.History {
			b.WriteString("  - " + h.Text + "\n")
		}
	}
}

func sortedKeys(m map[string]*models.CharacterSheet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedEntityKeys(m map[string]*models.Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
