package world

import (
	"testing"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

func TestAdvanceEnvironment(t *testing.T) {
	cases := []struct {
		name    string
		clock   string
		timeStr string
		minutes int
		want    string
	}{
		{"literal time", "08:00", "14:30", 0, "14:30"},
		{"auto plus minutes", "08:00", "Auto", 90, "09:30"},
		{"midnight wraparound", "23:45", "", 30, "00:15"},
		{"literal wins over minutes", "08:00", "12:00", 120, "12:00"},
		{"no change", "08:00", "", 0, "08:00"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := models.NewWorldState("s1")
			w.Environment.Clock = c.clock
			if err := AdvanceEnvironment(w, c.timeStr, "", c.minutes); err != nil {
				t.Fatal(err)
			}
			if w.Environment.Clock != c.want {
				t.Errorf("clock = %s, want %s", w.Environment.Clock, c.want)
			}
		})
	}
}

func TestAdvanceEnvironment_InvalidLiteral(t *testing.T) {
	w := models.NewWorldState("s1")
	if err := AdvanceEnvironment(w, "25:99", "", 0); err == nil {
		t.Fatal("expected error for invalid literal time")
	}
}

func TestAdvanceEnvironment_Weather(t *testing.T) {
	w := models.NewWorldState("s1")
	if err := AdvanceEnvironment(w, "Auto", "heavy rain", 10); err != nil {
		t.Fatal(err)
	}
	if w.Environment.Weather != "heavy rain" {
		t.Errorf("weather = %q", w.Environment.Weather)
	}
}
