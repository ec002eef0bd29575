// Package tools implements the typed registry of side-effecting
// operations the oracle may invoke mid-turn.
package tools

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// Invocation carries the mutable state one tool call operates on. The
// engine hands the same Invocation through a whole tool loop and persists
// the session/world afterwards. World mutations are applied to the held
// snapshot for in-loop visibility and journaled, so PersistWorld can
// replay them onto a fresh copy instead of overwriting another writer's
// finished merge.
type Invocation struct {
	Session  *models.Session
	World    *models.WorldState
	IsReroll bool

	mutations []func(*models.WorldState) error
}

func (inv *Invocation) recordWorldMutation(fn func(*models.WorldState) error) {
	inv.mutations = append(inv.mutations, fn)
}

// Handler executes one tool against an invocation and returns the result
// string fed back to the oracle.
type Handler func(ctx context.Context, inv *Invocation, args map[string]interface{}) (string, error)

// Dispatcher routes oracle tool calls to their handlers. Execution errors
// are converted to descriptive strings so the oracle can react
// narratively; they never abort a turn.
type Dispatcher struct {
	handlers map[string]Handler
	diceLock interfaces.DiceLock

	worldMu    sync.Mutex
	worldLocks map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher with the full tool set registered.
func NewDispatcher(diceLock interfaces.DiceLock) *Dispatcher {
	d := &Dispatcher{
		handlers:   make(map[string]Handler),
		diceLock:   diceLock,
		worldLocks: make(map[string]*sync.Mutex),
	}
	d.handlers["roll_d20"] = d.rollD20
	d.handlers["apply_damage"] = d.applyDamage
	d.handlers["apply_healing"] = d.applyHealing
	d.handlers["deduct_mana"] = d.deductMana
	d.handlers["grant_item_to_player"] = d.grantItem
	d.handlers["update_world_entity"] = d.updateWorldEntity
	d.handlers["update_environment"] = d.updateEnvironment
	d.handlers["manage_story_log"] = d.manageStoryLog
	d.handlers["update_journal"] = d.updateJournal
	return d
}

// Names returns the registered tool names.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs one tool call. The returned string is always safe to hand
// back to the oracle; failures come back as error strings, not errors.
func (d *Dispatcher) Execute(ctx context.Context, inv *Invocation, call interfaces.ToolCall) (result string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Tools] panic in %s: %v", call.Name, r)
			result = fmt.Sprintf("Error: tool %s failed internally", call.Name)
		}
	}()

	handler, ok := d.handlers[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	out, err := handler(ctx, inv, call.Args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}

// PersistWorld saves an invocation's world mutations. Under the
// session's write lock it re-reads the stored world, replays the journal
// onto that fresh copy and saves it, then points the invocation at the
// merged document. The turn engine and the scribe share this path, so a
// slow writer holding a stale snapshot cannot erase a faster one's
// finished work; the lock is held only for the reload-merge-save window,
// never across oracle calls. A journal-free invocation is a no-op.
func (d *Dispatcher) PersistWorld(ctx context.Context, store interfaces.WorldStore, inv *Invocation) error {
	if len(inv.mutations) == 0 {
		return nil
	}

	lock := d.sessionWorldLock(inv.Session.ID)
	lock.Lock()
	defer lock.Unlock()

	fresh, err := store.GetWorldState(ctx, inv.Session.ID)
	if err != nil {
		return fmt.Errorf("reload world: %w", err)
	}
	for _, apply := range inv.mutations {
		if err := apply(fresh); err != nil {
			return fmt.Errorf("replay world mutation: %w", err)
		}
	}
	if err := store.SaveWorldState(ctx, fresh); err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	inv.World = fresh
	return nil
}

// ForgetSession drops the per-session write lock after deletion.
func (d *Dispatcher) ForgetSession(sessionID string) {
	d.worldMu.Lock()
	defer d.worldMu.Unlock()
	delete(d.worldLocks, sessionID)
}

func (d *Dispatcher) sessionWorldLock(sessionID string) *sync.Mutex {
	d.worldMu.Lock()
	defer d.worldMu.Unlock()
	lock, ok := d.worldLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.worldLocks[sessionID] = lock
	}
	return lock
}

// Argument helpers. Tool args arrive as a JSON-decoded string-keyed map,
// so numbers are float64 and everything may be missing.

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		if s := argString(args, key); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
