// Package prompts renders the prompt text sent to the oracle: the system
// preamble, per-turn prompts with the HUD, and the scribe extraction
// prompt.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// TemplateEngine manages prompt templates.
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template is a prompt template with {{variable}} placeholders.
type Template struct {
	Name    string
	Content string
}

// Template names registered by default.
const (
	TemplateSystemPreamble = "system_preamble"
	TemplateTurnPrompt     = "turn_prompt"
	TemplateScribeExtract  = "scribe_extract"
	TemplateForcedWrapUp   = "forced_wrapup"
	TemplateMalformedRetry = "malformed_retry"
)

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewTemplateEngine creates a template engine with the default templates
// registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerDefaults()
	return e
}

// RegisterTemplate registers or replaces a template.
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Name] = tmpl
}

// Render renders a template with the given variables. Unknown
// placeholders are left intact.
func (e *TemplateEngine) Render(name string, vars map[string]string) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		key := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
	return strings.TrimSpace(result), nil
}

func (e *TemplateEngine) registerDefaults() {
	e.templates[TemplateSystemPreamble] = &Template{
		Name: TemplateSystemPreamble,
		Content: `You are the Dungeon Master of a persistent role-play campaign.
Scenario: {{scenario}}
Lore: {{lore}}

Narrate in second person, keep continuity with everything below, and use the
provided tools for every mechanical effect (dice, damage, healing, mana,
items, world facts, the clock, the journal). Never print raw tool syntax in
your narration.

{{memory_block}}`,
	}

	e.templates[TemplateTurnPrompt] = &Template{
		Name: TemplateTurnPrompt,
		Content: `[Turn {{turn_number}} | Time {{clock}} | Location: {{location}} | Quest: {{quest}}]
[Party: {{vitals}}]
{{pacing}}{{social_pressure}}
Player ({{actor}}): {{input}}`,
	}

	e.templates[TemplateScribeExtract] = &Template{
		Name: TemplateScribeExtract,
		Content: `You are a records keeper. Read the narrative below and record what
changed in the world using only the update_world_entity and manage_story_log
tools. Known entities: {{known_entities}}. Active participants: {{participants}}.
Do not invent facts that are not in the text. If nothing changed, reply "nothing".

Narrative:
{{narrative}}`,
	}

	e.templates[TemplateForcedWrapUp] = &Template{
		Name: TemplateForcedWrapUp,
		Content: `Stop calling tools now. Using the tool results you already have,
write the narrative for this turn.`,
	}

	e.templates[TemplateMalformedRetry] = &Template{
		Name: TemplateMalformedRetry,
		Content: `Your previous reply was empty or malformed. Reply again with
narrative text for the current turn.`,
	}
}
