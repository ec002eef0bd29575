// Package scribe is the best-effort background pass that re-reads
// produced narrative and records world facts the primary oracle forgot
// to. It is an optimization, never a correctness requirement: failures
// are logged and swallowed, and it never blocks a turn.
package scribe

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/prompts"
	"github.com/Azurakun/AnTiMa-sub000/internal/tools"
)

const (
	queueSize      = 64
	maxToolLoops   = 8
	extractTimeout = 2 * time.Minute
)

// Job is one extraction request.
type Job struct {
	SessionID    string
	Narrative    string
	KnownNames   []string
	Participants []string
}

// Worker runs extraction jobs off a queue. Per-session mutual exclusion
// keeps two passes from interleaving read-modify-write world merges.
type Worker struct {
	oracle     interfaces.Oracle
	dispatcher *tools.Dispatcher
	sessions   interfaces.SessionStore
	worlds     interfaces.WorldStore
	templates  *prompts.TemplateEngine

	jobs chan Job
	stop chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWorker(oracle interfaces.Oracle, dispatcher *tools.Dispatcher, sessions interfaces.SessionStore, worlds interfaces.WorldStore, templates *prompts.TemplateEngine) *Worker {
	return &Worker{
		oracle:     oracle,
		dispatcher: dispatcher,
		sessions:   sessions,
		worlds:     worlds,
		templates:  templates,
		jobs:       make(chan Job, queueSize),
		stop:       make(chan struct{}),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case job := <-w.jobs:
				ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
				if err := w.Extract(ctx, job); err != nil {
					log.Printf("[Scribe] extraction failed for %s: %v", job.SessionID, err)
				}
				cancel()
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop shuts the worker down after the current job.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

// Enqueue submits a job without blocking; a full queue drops the job,
// since the scribe is best effort.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.jobs <- job:
	default:
		log.Printf("[Scribe] queue full, dropping job for %s", job.SessionID)
	}
}

// Extract runs one extraction pass synchronously under the session's
// scribe lock. The sync/rebuild path calls this directly, chunk by chunk.
func (w *Worker) Extract(ctx context.Context, job Job) error {
	lock := w.sessionLock(job.SessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := w.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		return err
	}
	world, err := w.worlds.GetWorldState(ctx, job.SessionID)
	if err != nil {
		return err
	}

	prompt, err := w.templates.Render(prompts.TemplateScribeExtract, map[string]string{
		"narrative":      job.Narrative,
		"known_entities": strings.Join(job.KnownNames, ", "),
		"participants":   strings.Join(job.Participants, ", "),
	})
	if err != nil {
		return err
	}

	conversation := []interfaces.Message{{Role: interfaces.RoleUser, Content: prompt}}
	inv := &tools.Invocation{Session: session, World: world}
	schemas := tools.ScribeSchemas()

	for i := 0; i < maxToolLoops; i++ {
		resp, err := w.oracle.Send(ctx, conversation, schemas)
		if err != nil {
			return err
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		conversation = append(conversation, interfaces.Message{
			Role:      interfaces.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := w.dispatcher.Execute(ctx, inv, call)
			conversation = append(conversation, interfaces.Message{
				Role:       interfaces.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// Merge-save through the shared world-write path; a pass that
	// recorded nothing writes nothing.
	return w.dispatcher.PersistWorld(ctx, w.worlds, inv)
}

func (w *Worker) sessionLock(sessionID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[sessionID] = lock
	}
	return lock
}
