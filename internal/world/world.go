// Package world implements the entity-resolution and merge rules for the
// categorized world model. Within a category there is exactly one canonical
// record per distinct identity; new facts merge into the existing record.
package world

import (
	"strings"
	"time"
	"unicode"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// Details-preservation guard: an established long description must not be
// overwritten by a terse update.
const (
	detailsKeepThreshold  = 50
	detailsShortThreshold = 20
)

// NormalizeKey sanitizes an entity name into a category map key:
// lowercase, runs of non-alphanumerics collapsed to single underscores.
func NormalizeKey(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ResolveKey finds the canonical key for a name within a category, or
// returns the normalized name with found=false when no record matches.
//
// NPCs resolve in priority order: exact key, recorded alias, fuzzy
// substring overlap on the name. Other categories resolve by exact
// normalized key only.
//
// The fuzzy step preserves the original substring-containment behavior and
// can false-merge short names ("Ann" matches both "Anna" and "Annabeth").
// The resolution policy upstream does not define a better rule, so the
// risk is accepted rather than silently changed.
func ResolveKey(entities map[string]*models.Entity, cat models.Category, name string) (string, bool) {
	key := NormalizeKey(name)
	if _, ok := entities[key]; ok {
		return key, true
	}
	if cat != models.CategoryNPC {
		return key, false
	}

	for k, e := range entities {
		for _, alias := range e.Attributes.Aliases {
			if NormalizeKey(alias) == key {
				return k, true
			}
		}
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	for k, e := range entities {
		known := strings.ToLower(e.Name)
		if known == "" || lower == "" {
			continue
		}
		if strings.Contains(known, lower) || strings.Contains(lower, known) {
			return k, true
		}
	}

	return key, false
}

// Update describes one merge request against a category.
type Update struct {
	Name       string
	Details    string
	Status     string
	Aliases    []string
	MemoryAdd  string
	Extra      map[string]string
	At         time.Time // merge timestamp; zero means now
}

// Apply merges an update into the world state and returns the canonical
// key the update landed on.
func Apply(world *models.WorldState, cat models.Category, upd Update) string {
	entities := world.Entities(cat)
	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	key, found := ResolveKey(entities, cat, upd.Name)
	entity := entities[key]
	if !found {
		entity = &models.Entity{Name: strings.TrimSpace(upd.Name)}
		entities[key] = entity
	}

	if upd.Details != "" {
		if !(len(entity.Details) > detailsKeepThreshold && len(upd.Details) < detailsShortThreshold) {
			entity.Details = upd.Details
		}
	}
	if upd.Status != "" {
		entity.Status = upd.Status
	}

	for _, alias := range upd.Aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" || containsFold(entity.Attributes.Aliases, alias) {
			continue
		}
		entity.Attributes.Aliases = append(entity.Attributes.Aliases, alias)
	}

	if upd.MemoryAdd != "" && !hasHistoryLine(entity.Attributes.History, upd.MemoryAdd) {
		entity.Attributes.History = append(entity.Attributes.History, models.HistoryLine{
			Text:      upd.MemoryAdd,
			Timestamp: at,
		})
	}

	if len(upd.Extra) > 0 {
		if entity.Attributes.Extra == nil {
			entity.Attributes.Extra = make(map[string]string, len(upd.Extra))
		}
		for k, v := range upd.Extra {
			entity.Attributes.Extra[k] = v
		}
	}

	entity.LastUpdated = at
	world.UpdatedAt = at
	return key
}

// AddStoryNote appends an open note to the story log.
func AddStoryNote(world *models.WorldState, note string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	world.StoryLog = append(world.StoryLog, models.StoryNote{
		Note:      note,
		Status:    "open",
		CreatedAt: at,
	})
	world.UpdatedAt = at
}

// ResolveStoryNotes marks every note whose text contains the given
// substring (case-insensitive) as resolved, returning how many matched.
func ResolveStoryNotes(world *models.WorldState, substring, status string) int {
	if status == "" {
		status = "resolved"
	}
	needle := strings.ToLower(substring)
	matched := 0
	for i := range world.StoryLog {
		if strings.Contains(strings.ToLower(world.StoryLog[i].Note), needle) {
			world.StoryLog[i].Status = status
			matched++
		}
	}
	return matched
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func hasHistoryLine(history []models.HistoryLine, text string) bool {
	for _, line := range history {
		if line.Text == text {
			return true
		}
	}
	return false
}
