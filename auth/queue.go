package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thechompapp/chompauth/event"
	"github.com/thechompapp/chompauth/store"
)

// ReplayFunc executes one queued action against the remote service.
type ReplayFunc func(ctx context.Context, action PendingAction) error

// PendingActionQueue is the ordered log of mutating operations attempted
// while offline. Actions are replayed strictly sequentially, in arrival
// order, once connectivity returns: a failed action stays at the head and
// stops the cycle (no skipping), until its retry budget is exhausted, at
// which point it is removed and surfaced rather than silently dropped.
// The queue persists across logout and process restarts.
type PendingActionQueue struct {
	mu        sync.Mutex
	replaying bool

	store       store.Store
	replay      ReplayFunc
	maxAttempts int
	timeout     time.Duration
	now         func() time.Time
	log         *slog.Logger
}

func newPendingActionQueue(st store.Store, replay ReplayFunc, cfg Config, now func() time.Time, bus *event.Bus, log *slog.Logger) *PendingActionQueue {
	q := &PendingActionQueue{
		store:       st,
		replay:      replay,
		maxAttempts: cfg.MaxReplayAttempts,
		timeout:     cfg.RequestTimeout,
		now:         now,
		log:         log.With("component", "pending_queue"),
	}
	event.Subscribe(bus, func(NetworkOnline) {
		go func() {
			if failed, err := q.ProcessPending(context.Background()); err != nil {
				q.log.Warn("queue replay incomplete", "error", err, "permanently_failed", len(failed))
			}
		}()
	})
	return q
}

// Enqueue appends a mutating operation, assigning it an ID and capture
// time, and persists the queue.
func (q *PendingActionQueue) Enqueue(kind string, payload json.RawMessage) (PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load()
	if err != nil {
		return PendingAction{}, err
	}
	action := PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: q.now(),
	}
	actions = append(actions, action)
	if err := q.save(actions); err != nil {
		return PendingAction{}, err
	}
	q.log.Info("action queued", "kind", kind, "id", action.ID, "depth", len(actions))
	return action, nil
}

// Pending returns the queued actions in arrival order.
func (q *PendingActionQueue) Pending() ([]PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// ProcessPending replays queued actions one at a time, in arrival order.
// Each action's remote call completes before the next begins. A retryable
// failure leaves the failed action at the head and ends the cycle; an
// action that exhausts its retry budget is removed and returned in the
// permanently-failed slice along with ErrQueueReplayFailed.
func (q *PendingActionQueue) ProcessPending(ctx context.Context) ([]PendingAction, error) {
	q.mu.Lock()
	if q.replaying {
		q.mu.Unlock()
		return nil, nil
	}
	q.replaying = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.replaying = false
		q.mu.Unlock()
	}()

	var failed []PendingAction
	for {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		q.mu.Lock()
		actions, err := q.load()
		q.mu.Unlock()
		if err != nil {
			return failed, err
		}
		if len(actions) == 0 {
			break
		}
		head := actions[0]

		callCtx, cancel := context.WithTimeout(ctx, q.timeout)
		replayErr := q.replay(callCtx, head)
		cancel()

		if replayErr == nil {
			if err := q.dropHead(head.ID); err != nil {
				return failed, err
			}
			q.log.Info("action replayed", "kind", head.Kind, "id", head.ID)
			continue
		}

		head.Attempts++
		if head.Attempts >= q.maxAttempts {
			if err := q.dropHead(head.ID); err != nil {
				return failed, err
			}
			failed = append(failed, head)
			q.log.Warn("action permanently failed", "kind", head.Kind, "id", head.ID,
				"attempts", head.Attempts, "error", replayErr)
			continue
		}

		// Retryable: keep the action at the head and stop this cycle so
		// ordering is preserved.
		if err := q.updateHead(head); err != nil {
			return failed, err
		}
		q.log.Info("action replay failed, will retry", "kind", head.Kind, "id", head.ID,
			"attempts", head.Attempts, "error", replayErr)
		break
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("%w: %d action(s)", ErrQueueReplayFailed, len(failed))
	}
	return nil, nil
}

// dropHead removes the head action if it still matches id. The queue may
// have been appended to during the remote call; appends never displace
// the head, so an ID check is enough.
func (q *PendingActionQueue) dropHead(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.load()
	if err != nil {
		return err
	}
	if len(actions) == 0 || actions[0].ID != id {
		return nil
	}
	return q.save(actions[1:])
}

func (q *PendingActionQueue) updateHead(head PendingAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.load()
	if err != nil {
		return err
	}
	if len(actions) == 0 || actions[0].ID != head.ID {
		return nil
	}
	actions[0] = head
	return q.save(actions)
}

func (q *PendingActionQueue) load() ([]PendingAction, error) {
	data, err := q.store.Get(keyPendingActions)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading pending actions: %v", ErrStorage, err)
	}
	var actions []PendingAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("%w: corrupt pending actions: %v", ErrStorage, err)
	}
	return actions, nil
}

func (q *PendingActionQueue) save(actions []PendingAction) error {
	if len(actions) == 0 {
		if err := q.store.Delete(keyPendingActions); err != nil {
			return fmt.Errorf("%w: clearing pending actions: %v", ErrStorage, err)
		}
		return nil
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("%w: marshaling pending actions: %v", ErrStorage, err)
	}
	if err := q.store.Put(keyPendingActions, data); err != nil {
		return fmt.Errorf("%w: persisting pending actions: %v", ErrStorage, err)
	}
	return nil
}
