package world

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// AdvanceEnvironment updates the in-world clock and weather.
//
// When minutesPassed > 0 it is added to the current clock with modulo-24h
// wraparound and takes precedence, unless timeStr carries an explicit
// literal HH:MM (anything other than "" or "Auto"). Weather is replaced
// only when non-empty.
func AdvanceEnvironment(world *models.WorldState, timeStr, weather string, minutesPassed int) error {
	env := &world.Environment

	explicit := timeStr != "" && !strings.EqualFold(timeStr, "auto")
	switch {
	case explicit:
		h, m, err := parseClock(timeStr)
		if err != nil {
			return err
		}
		env.Clock = fmt.Sprintf("%02d:%02d", h, m)
	case minutesPassed > 0:
		h, m, err := parseClock(env.Clock)
		if err != nil {
			h, m = 8, 0
		}
		total := (h*60 + m + minutesPassed) % (24 * 60)
		env.Clock = fmt.Sprintf("%02d:%02d", total/60, total%60)
	}

	if weather != "" {
		env.Weather = weather
	}
	env.UpdatedAt = time.Now()
	world.UpdatedAt = env.UpdatedAt
	return nil
}

func parseClock(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in clock %q", s)
	}
	return h, m, nil
}
