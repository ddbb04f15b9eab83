package engine

import (
	"context"

	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/reqctx"
)

// Resume applies a human decision to a task suspended in
// pending_human_approval and continues the FSM synchronously — only valid
// when Durable() is true. It overwrites the just-persisted supervisor review
// for the current round in place (the chosen resolution of the source's
// inconsistent override behavior; see the design notes) and then runs the
// routing predicate exactly as review_node would have: approve/reject
// finalize immediately, revise re-enters the dispatch loop.
func (e *Engine) Resume(ctx context.Context, keys reqctx.Keys, taskID string, decision domain.HumanDecision) (*domain.Task, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	review := ReviewResult{Decision: decision.Decision, Feedback: decision.Feedback}
	if err := e.persistReview(ctx, taskID, review, task.CurrentRevision); err != nil {
		return nil, err
	}

	if err := e.route(ctx, taskID, review); err != nil {
		e.failFatal(ctx, taskID, err)
		return e.tasks.Get(ctx, taskID)
	}

	task, err = e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	// Routed to revise: continue the loop in-place, same as a fresh Run
	// would, since a durable resume is expected to finish the resumed
	// invocation synchronously.
	provider := e.llmClient.WithKeys(keys)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()
	for {
		suspended, err := e.runRound(ctx, provider, task)
		if err != nil {
			if ctx.Err() != nil {
				e.failTimeout(context.Background(), taskID)
			} else {
				e.failFatal(context.Background(), taskID, err)
			}
			return e.tasks.Get(context.Background(), taskID)
		}
		if suspended {
			return e.tasks.Get(context.Background(), taskID)
		}
		task, err = e.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
	}
}
