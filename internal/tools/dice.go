package tools

import (
	"context"
	"fmt"
	"log"
	"math/rand"
)

// rollD20 rolls 1d20 + modifier against a difficulty. Disabled in story
// mode. On a reroll turn a previously locked result is replayed instead of
// rolling again, so rerolling changes prose but never dice fate.
func (d *Dispatcher) rollD20(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	if inv.Session.StoryMode {
		return "Dice are disabled: this session runs in story mode.", nil
	}

	checkType := argString(args, "check_type")
	if checkType == "" {
		checkType = "check"
	}
	difficulty, ok := argInt(args, "difficulty")
	if !ok {
		return "", fmt.Errorf("roll_d20 requires a difficulty")
	}
	modifier, _ := argInt(args, "modifier")

	if inv.IsReroll && d.diceLock != nil {
		locked, err := d.diceLock.Locked(ctx, inv.Session.ID)
		if err == nil && locked != "" {
			return "Reroll: reusing the original result. " + locked, nil
		}
	}

	roll := rand.Intn(20) + 1
	total := roll + modifier

	outcome := "failure"
	if total >= difficulty {
		outcome = "success"
	}
	result := fmt.Sprintf("Rolled d20 for %s: %d + %d = %d vs DC %d, %s.",
		checkType, roll, modifier, total, difficulty, outcome)
	if roll == 20 {
		result += " Critical!"
	}

	if d.diceLock != nil {
		if err := d.diceLock.Lock(ctx, inv.Session.ID, result); err != nil {
			// Lock failure degrades reroll fidelity but not the turn.
			log.Printf("[Tools] dice lock failed: %v", err)
		}
	}
	return result, nil
}
