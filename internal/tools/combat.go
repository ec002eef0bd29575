package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

func (d *Dispatcher) applyDamage(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	return d.adjustVitals(inv, args, "damage")
}

func (d *Dispatcher) applyHealing(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	return d.adjustVitals(inv, args, "healing")
}

func (d *Dispatcher) deductMana(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	return d.adjustVitals(inv, args, "mana")
}

// adjustVitals clamps hp/mp within [0, max]. Story mode suppresses all
// mechanical changes.
func (d *Dispatcher) adjustVitals(inv *Invocation, args map[string]interface{}, kind string) (string, error) {
	if inv.Session.StoryMode {
		return "Mechanics are disabled: this session runs in story mode.", nil
	}

	target := argString(args, "target")
	if target == "" {
		return "", fmt.Errorf("%s requires a target participant", kind)
	}
	amount, ok := argInt(args, "amount")
	if !ok || amount < 0 {
		return "", fmt.Errorf("%s requires a non-negative amount", kind)
	}

	sheet, ok := inv.Session.PlayerStats[target]
	if !ok {
		return "", fmt.Errorf("unknown participant %q", target)
	}

	switch kind {
	case "damage":
		sheet.HP = clamp(sheet.HP-amount, 0, sheet.MaxHP)
		return fmt.Sprintf("%s takes %d damage. HP: %d/%d.", sheet.Name, amount, sheet.HP, sheet.MaxHP), nil
	case "healing":
		sheet.HP = clamp(sheet.HP+amount, 0, sheet.MaxHP)
		return fmt.Sprintf("%s heals %d. HP: %d/%d.", sheet.Name, amount, sheet.HP, sheet.MaxHP), nil
	default:
		sheet.MP = clamp(sheet.MP-amount, 0, sheet.MaxMP)
		return fmt.Sprintf("%s spends %d mana. MP: %d/%d.", sheet.Name, amount, sheet.MP, sheet.MaxMP), nil
	}
}

// grantItem appends a timestamped item to the recipient's inventory.
// Duplicates are allowed; dedup is the caller's concern.
func (d *Dispatcher) grantItem(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error) {
	target := argString(args, "target")
	item := argString(args, "item")
	if target == "" || item == "" {
		return "", fmt.Errorf("grant_item_to_player requires target and item")
	}
	sheet, ok := inv.Session.PlayerStats[target]
	if !ok {
		return "", fmt.Errorf("unknown participant %q", target)
	}
	sheet.Inventory = append(sheet.Inventory, models.ItemGrant{Name: item, GrantedAt: time.Now()})
	return fmt.Sprintf("%s receives %s.", sheet.Name, item), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
