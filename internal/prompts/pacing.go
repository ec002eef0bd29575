package prompts

import (
	"strings"
	"unicode"
)

// Pacing classifies how a turn's narration should be paced based on the
// player's input. It biases narrative tone only, never mechanics.
type Pacing string

const (
	PacingFast    Pacing = "fast"
	PacingNeutral Pacing = "neutral"
	PacingSlow    Pacing = "slow"
)

var actionVerbs = map[string]bool{
	"attack": true, "strike": true, "charge": true, "stab": true,
	"shoot": true, "cast": true, "fight": true, "run": true, "flee": true,
	"dodge": true, "grab": true, "throw": true, "slash": true, "punch": true,
	"kick": true, "sprint": true, "lunge": true, "fire": true,
}

// passiveInputs are stop-words that signal the player is idling and the
// scene should apply social pressure.
var passiveInputs = map[string]bool{
	"ok": true, "okay": true, "yes": true, "no": true, "hmm": true,
	"sure": true, "fine": true, "wait": true, "nothing": true, "idk": true,
	"continue": true, "go on": true,
}

const longInputThreshold = 120

// ClassifyPacing derives the pacing directive from the input: action
// verbs read as fast and intense, short non-action tokens as neutral,
// longer free text as slow and atmospheric.
func ClassifyPacing(input string) Pacing {
	trimmed := strings.TrimSpace(input)
	for _, word := range strings.Fields(strings.ToLower(trimmed)) {
		if actionVerbs[strings.TrimFunc(word, unicode.IsPunct)] {
			return PacingFast
		}
	}
	if len(trimmed) >= longInputThreshold {
		return PacingSlow
	}
	return PacingNeutral
}

// IsPassive reports whether the input is passive or silent: empty,
// punctuation-only, or a stop-word.
func IsPassive(input string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return true
	}
	if passiveInputs[trimmed] {
		return true
	}
	for _, r := range trimmed {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// PacingDirective renders the prompt line for a pacing class.
func PacingDirective(p Pacing) string {
	switch p {
	case PacingFast:
		return "[Pacing: fast and intense. Short sentences, immediate consequences]\n"
	case PacingSlow:
		return "[Pacing: slow and atmospheric. Linger on detail and mood]\n"
	default:
		return ""
	}
}

// SocialPressureDirective is injected when the player goes quiet: the
// world should press on them rather than stall.
func SocialPressureDirective() string {
	return "[The player is hesitating. Have the world act: an NPC speaks, time passes, or the situation escalates.]\n"
}
