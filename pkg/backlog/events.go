package backlog

import (
	"context"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/records"
)

// Bus reactions. Handlers are deliberately forgiving: a record that is
// missing or not in the expected source state makes the reaction a no-op
// rather than an error, because the events also fire in flows where no
// reaction is due.

// handleFeedbackCreated pauses an active task hit by blocking feedback, and
// resumes a paused task when the last open blocking feedback gets resolved.
func (a *Adapter) handleFeedbackCreated(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.FeedbackCreated)
	if !ok {
		return nil
	}

	if payload.Type == records.FeedbackBlocking && payload.EntityType == records.EntityTask {
		task, err := a.GetTask(ctx, payload.EntityID)
		if err != nil || task.Status != records.TaskStatusActive {
			return nil
		}
		actorID := a.actingActor(ctx, payload.TriggeredBy)
		_, err = a.transition(ctx, transitionRequest{
			TaskID: task.ID, ActorID: actorID,
			To: records.TaskStatusPaused, Reason: "blocked by feedback", System: true,
		})
		if err != nil {
			a.logger.Warn("pausing task on blocking feedback", "task", task.ID, "error", err)
			return err
		}
		a.clearActiveTask(ctx, actorID)
		return nil
	}

	if payload.ResolvesFeedbackID != "" && a.feedback != nil {
		resolved, err := a.feedback.GetFeedback(ctx, payload.ResolvesFeedbackID)
		if err != nil || resolved.EntityType != records.EntityTask {
			return nil
		}
		task, err := a.GetTask(ctx, resolved.EntityID)
		if err != nil || task.Status != records.TaskStatusPaused {
			return nil
		}
		open, err := a.feedback.OpenBlocking(ctx, task.ID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return nil
		}
		actorID := a.actingActor(ctx, payload.TriggeredBy)
		_, err = a.transition(ctx, transitionRequest{
			TaskID: task.ID, ActorID: actorID,
			To: records.TaskStatusActive, Reason: "last blocking feedback resolved", System: true,
		})
		if err != nil {
			a.logger.Warn("auto-resuming task", "task", task.ID, "error", err)
			return err
		}
		a.setActiveTask(ctx, actorID, task.ID)
		return nil
	}
	return nil
}

// handleExecutionCreated activates a ready task on its first execution.
func (a *Adapter) handleExecutionCreated(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.ExecutionCreated)
	if !ok || !payload.IsFirstExecution {
		return nil
	}
	task, err := a.GetTask(ctx, payload.TaskID)
	if err != nil || task.Status != records.TaskStatusReady {
		return nil
	}
	actorID := a.actingActor(ctx, payload.ActorID)
	_, err = a.transition(ctx, transitionRequest{
		TaskID: task.ID, ActorID: actorID,
		To: records.TaskStatusActive, Reason: "first execution recorded", System: true,
	})
	if err != nil {
		a.logger.Warn("activating task on first execution", "task", task.ID, "error", err)
		return err
	}
	a.setActiveTask(ctx, actorID, task.ID)
	return nil
}

// handleChangelogCreated archives every done task the changelog covers.
func (a *Adapter) handleChangelogCreated(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.ChangelogCreated)
	if !ok {
		return nil
	}
	actorID := a.actingActor(ctx, "")
	var firstErr error
	for _, taskID := range payload.RelatedTasks {
		task, err := a.GetTask(ctx, taskID)
		if err != nil || task.Status != records.TaskStatusDone {
			continue
		}
		_, err = a.transition(ctx, transitionRequest{
			TaskID: taskID, ActorID: actorID,
			To: records.TaskStatusArchived, Reason: "archived by " + payload.ChangelogID, System: true,
		})
		if err != nil {
			a.logger.Warn("archiving task on changelog", "task", taskID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// handleCycleStatusChanged propagates completion upward: when a child cycle
// completes and all its siblings are terminal, the parent completes too.
func (a *Adapter) handleCycleStatusChanged(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.CycleStatusChanged)
	if !ok || payload.NewStatus != records.CycleStatusCompleted {
		return nil
	}
	parents, err := a.parentCycles(ctx, payload.CycleID)
	if err != nil {
		return err
	}
	for _, parent := range parents {
		if parent.Status.IsTerminal() {
			continue
		}
		done, err := a.allChildrenTerminal(ctx, &parent)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		status := records.CycleStatusCompleted
		if _, err := a.UpdateCycle(ctx, parent.ID, payload.TriggeredBy, CycleUpdate{Status: &status}); err != nil {
			a.logger.Warn("propagating cycle completion", "cycle", parent.ID, "error", err)
			return err
		}
	}
	return nil
}

// handleDailyTick is the reserved staleness hook. It must never fail.
func (a *Adapter) handleDailyTick(ctx context.Context, evt eventbus.Event) error {
	return nil
}

// actingActor picks the identity that signs a system transition: the actor
// carried by the event, falling back to the session's current actor.
func (a *Adapter) actingActor(ctx context.Context, eventActor string) string {
	if eventActor != "" {
		return eventActor
	}
	actor, err := a.identity.GetCurrentActor(ctx)
	if err != nil {
		a.logger.Warn("no current actor for system transition", "error", err)
		return "system"
	}
	return actor.ID
}

func (a *Adapter) parentCycles(ctx context.Context, childID string) ([]records.Cycle, error) {
	all, err := a.GetAllCycles(ctx)
	if err != nil {
		return nil, err
	}
	var out []records.Cycle
	for _, c := range all {
		for _, id := range c.ChildCycleIDs {
			if id == childID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (a *Adapter) allChildrenTerminal(ctx context.Context, parent *records.Cycle) (bool, error) {
	for _, childID := range parent.ChildCycleIDs {
		child, err := a.GetCycle(ctx, childID)
		if err != nil {
			return false, err
		}
		if !child.Status.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}
