package prompts

import (
	"strings"
	"testing"
)

func TestClassifyPacing(t *testing.T) {
	cases := []struct {
		input string
		want  Pacing
	}{
		{"I attack the bandit", PacingFast},
		{"I charge across the bridge!", PacingFast},
		{"I look around the room", PacingNeutral},
		{"ok", PacingNeutral},
		{strings.Repeat("I carefully examine the faded murals on the temple wall. ", 3), PacingSlow},
	}
	for _, c := range cases {
		if got := ClassifyPacing(c.input); got != c.want {
			t.Errorf("ClassifyPacing(%q) = %s, want %s", c.input, got, c.want)
		}
	}
}

func TestIsPassive(t *testing.T) {
	for _, in := range []string{"", "...", "ok", "hmm", "  ?!  "} {
		if !IsPassive(in) {
			t.Errorf("IsPassive(%q) = false, want true", in)
		}
	}
	for _, in := range []string{"I open the door", "attack"} {
		if IsPassive(in) {
			t.Errorf("IsPassive(%q) = true, want false", in)
		}
	}
}

func TestRender(t *testing.T) {
	e := NewTemplateEngine()
	out, err := e.Render(TemplateTurnPrompt, map[string]string{
		"turn_number":     "3",
		"clock":           "14:30",
		"location":        "The Rusty Anchor",
		"quest":           "Find the ledger",
		"vitals":          "Kael 85/100 HP",
		"pacing":          "",
		"social_pressure": "",
		"actor":           "Kael",
		"input":           "I order an ale",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Turn 3") || !strings.Contains(out, "I order an ale") {
		t.Fatalf("unexpected render: %s", out)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, err := e.Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
