package backlog

import (
	"context"
	"fmt"
	"slices"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/records"
)

// CreateCycle validates, signs, persists a new cycle, and publishes
// cycle.created.
func (a *Adapter) CreateCycle(ctx context.Context, partial records.Cycle, actorID string) (*records.Cycle, error) {
	cycle, err := records.NewCycle(partial, a.now())
	if err != nil {
		return nil, err
	}
	rec, err := records.NewRecord(records.RecordTypeCycle, cycle)
	if err != nil {
		return nil, err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.cycles.Put(ctx, cycle.ID, rec); err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.EventCycleCreated, eventbus.CycleCreated{CycleID: cycle.ID, ActorID: actorID})
	return cycle, nil
}

// GetCycle returns one cycle.
func (a *Adapter) GetCycle(ctx context.Context, id string) (*records.Cycle, error) {
	rec, err := a.cycles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Cycle](rec)
}

// GetAllCycles returns every readable cycle. Corrupt records are logged and
// omitted.
func (a *Adapter) GetAllCycles(ctx context.Context) ([]records.Cycle, error) {
	ids, err := a.cycles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]records.Cycle, 0, len(ids))
	for _, id := range ids {
		cycle, err := a.GetCycle(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable cycle record", "id", id, "error", err)
			continue
		}
		out = append(out, *cycle)
	}
	return out, nil
}

// CycleUpdate is the mutable slice of a cycle. Nil fields are left
// unchanged.
type CycleUpdate struct {
	Title         *string
	Status        *records.CycleStatus
	Notes         *string
	Tags          []string
	ChildCycleIDs []string
	Metadata      map[string]any
}

// UpdateCycle applies an update and re-signs the record. Terminal cycles
// reject every update. A status change publishes cycle.status.changed and
// maintains the actor's activeCycleId: active sets it, completed clears it.
func (a *Adapter) UpdateCycle(ctx context.Context, cycleID, actorID string, update CycleUpdate) (*records.Cycle, error) {
	rec, err := a.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	cycle, err := records.Decode[records.Cycle](rec)
	if err != nil {
		return nil, err
	}
	if cycle.Status.IsTerminal() {
		return nil, &ProtocolViolationError{
			EntityID: cycleID, From: string(cycle.Status),
			Reason: "terminal cycles are immutable",
		}
	}
	oldStatus := cycle.Status
	if update.Title != nil {
		cycle.Title = *update.Title
	}
	if update.Status != nil {
		cycle.Status = *update.Status
	}
	if update.Notes != nil {
		cycle.Notes = *update.Notes
	}
	if update.Tags != nil {
		cycle.Tags = update.Tags
	}
	if update.ChildCycleIDs != nil {
		cycle.ChildCycleIDs = update.ChildCycleIDs
	}
	if update.Metadata != nil {
		cycle.Metadata = update.Metadata
	}
	if err := records.ValidateCycleDetailed(cycle).AsError(records.RecordTypeCycle, cycleID); err != nil {
		return nil, err
	}
	if err := a.writeCycle(ctx, rec, cycle, actorID); err != nil {
		return nil, err
	}

	if cycle.Status != oldStatus {
		switch cycle.Status {
		case records.CycleStatusActive:
			a.setActiveCycle(ctx, actorID, cycleID)
		case records.CycleStatusCompleted:
			a.clearActiveCycle(ctx, actorID)
		}
		a.publish(ctx, eventbus.EventCycleStatusChanged, eventbus.CycleStatusChanged{
			CycleID:     cycleID,
			OldStatus:   oldStatus,
			NewStatus:   cycle.Status,
			TriggeredBy: actorID,
		})
	}
	return cycle, nil
}

// AddTaskToCycle links a task into a cycle, maintaining the taskIds ⇄
// cycleIds invariant on both records.
func (a *Adapter) AddTaskToCycle(ctx context.Context, cycleID, taskID, actorID string) error {
	cycleRec, err := a.cycles.Get(ctx, cycleID)
	if err != nil {
		return err
	}
	cycle, err := records.Decode[records.Cycle](cycleRec)
	if err != nil {
		return err
	}
	if cycle.Status.IsTerminal() {
		return &ProtocolViolationError{
			EntityID: cycleID, From: string(cycle.Status),
			Reason: "terminal cycles are immutable",
		}
	}
	taskRec, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	task, err := records.Decode[records.Task](taskRec)
	if err != nil {
		return err
	}
	if slices.Contains(cycle.TaskIDs, taskID) {
		return nil
	}
	cycle.TaskIDs = append(cycle.TaskIDs, taskID)
	if !slices.Contains(task.CycleIDs, cycleID) {
		task.CycleIDs = append(task.CycleIDs, cycleID)
	}
	if err := a.writeCycle(ctx, cycleRec, cycle, actorID); err != nil {
		return err
	}
	return a.writeTask(ctx, taskRec, task, actorID, "author")
}

// RemoveTasksFromCycle unlinks tasks from a cycle on both sides of the
// invariant.
func (a *Adapter) RemoveTasksFromCycle(ctx context.Context, cycleID string, taskIDs []string, actorID string) error {
	cycleRec, err := a.cycles.Get(ctx, cycleID)
	if err != nil {
		return err
	}
	cycle, err := records.Decode[records.Cycle](cycleRec)
	if err != nil {
		return err
	}
	if cycle.Status.IsTerminal() {
		return &ProtocolViolationError{
			EntityID: cycleID, From: string(cycle.Status),
			Reason: "terminal cycles are immutable",
		}
	}
	remove := map[string]bool{}
	for _, id := range taskIDs {
		remove[id] = true
	}
	kept := cycle.TaskIDs[:0]
	for _, id := range cycle.TaskIDs {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	cycle.TaskIDs = kept
	if err := a.writeCycle(ctx, cycleRec, cycle, actorID); err != nil {
		return err
	}
	for _, taskID := range taskIDs {
		taskRec, err := a.tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		task, err := records.Decode[records.Task](taskRec)
		if err != nil {
			return err
		}
		task.CycleIDs = slices.DeleteFunc(task.CycleIDs, func(id string) bool { return id == cycleID })
		if err := a.writeTask(ctx, taskRec, task, actorID, "author"); err != nil {
			return err
		}
	}
	return nil
}

// MoveTasksBetweenCycles reassigns tasks from the source cycle to the
// target atomically: the two cycles and every task either all commit or
// every already-written record is restored to its pre-image.
func (a *Adapter) MoveTasksBetweenCycles(ctx context.Context, targetID string, taskIDs []string, sourceID, actorID string) error {
	const op = "moveTasksBetweenCycles"
	if sourceID == targetID {
		return &AtomicOperationError{Op: op, Reason: "source and target cycles are identical", RolledBack: true}
	}
	if len(taskIDs) == 0 {
		return &AtomicOperationError{Op: op, Reason: "no tasks to move", RolledBack: true}
	}

	sourceRec, err := a.cycles.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	targetRec, err := a.cycles.Get(ctx, targetID)
	if err != nil {
		return err
	}
	source, err := records.Decode[records.Cycle](sourceRec)
	if err != nil {
		return err
	}
	target, err := records.Decode[records.Cycle](targetRec)
	if err != nil {
		return err
	}
	if source.Status.IsTerminal() || target.Status.IsTerminal() {
		return &AtomicOperationError{Op: op, Reason: "source or target cycle is terminal", RolledBack: true}
	}
	for _, taskID := range taskIDs {
		if !slices.Contains(source.TaskIDs, taskID) {
			return &AtomicOperationError{
				Op:         op,
				Reason:     fmt.Sprintf("task %s is not in source cycle %s", taskID, sourceID),
				RolledBack: true,
			}
		}
	}

	// Stage every write up front so validation failures cost nothing.
	moving := map[string]bool{}
	for _, id := range taskIDs {
		moving[id] = true
	}
	type staged struct {
		store    recordStore
		id       string
		rec      *records.Record
		payload  any
		preImage *records.Record
	}
	newSource := *source
	newSource.TaskIDs = slices.DeleteFunc(slices.Clone(source.TaskIDs), func(id string) bool { return moving[id] })
	newTarget := *target
	for _, id := range taskIDs {
		if !slices.Contains(newTarget.TaskIDs, id) {
			newTarget.TaskIDs = append(newTarget.TaskIDs, id)
		}
	}
	writes := []staged{
		{store: a.cycles, id: sourceID, rec: sourceRec, payload: &newSource, preImage: cloneRecord(sourceRec)},
		{store: a.cycles, id: targetID, rec: targetRec, payload: &newTarget, preImage: cloneRecord(targetRec)},
	}
	for _, taskID := range taskIDs {
		taskRec, err := a.tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		task, err := records.Decode[records.Task](taskRec)
		if err != nil {
			return err
		}
		task.CycleIDs = slices.DeleteFunc(task.CycleIDs, func(id string) bool { return id == sourceID })
		if !slices.Contains(task.CycleIDs, targetID) {
			task.CycleIDs = append(task.CycleIDs, targetID)
		}
		writes = append(writes, staged{
			store: a.tasks, id: taskID, rec: taskRec, payload: task, preImage: cloneRecord(taskRec),
		})
	}

	commit := func(w staged) error {
		if err := w.rec.SetPayload(w.payload); err != nil {
			return err
		}
		if err := a.identity.SignRecord(ctx, w.rec, actorID, "author", ""); err != nil {
			return err
		}
		return w.store.Put(ctx, w.id, w.rec)
	}
	for i, w := range writes {
		err := commit(w)
		if err == nil {
			continue
		}
		// Restore everything written so far.
		rolledBack := true
		for j := i - 1; j >= 0; j-- {
			if rbErr := writes[j].store.Put(ctx, writes[j].id, writes[j].preImage); rbErr != nil {
				a.logger.Error("rollback write failed", "id", writes[j].id, "error", rbErr)
				rolledBack = false
			}
		}
		return &AtomicOperationError{Op: op, Reason: err.Error(), RolledBack: rolledBack}
	}
	return nil
}

// recordStore is the slice of the store API the atomic move needs.
type recordStore interface {
	Put(ctx context.Context, id string, rec *records.Record) error
}

func cloneRecord(rec *records.Record) *records.Record {
	clone := *rec
	clone.Payload = slices.Clone(rec.Payload)
	clone.Header.Signatures = slices.Clone(rec.Header.Signatures)
	return &clone
}

func (a *Adapter) writeCycle(ctx context.Context, rec *records.Record, cycle *records.Cycle, actorID string) error {
	if err := rec.SetPayload(cycle); err != nil {
		return err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return err
	}
	return a.cycles.Put(ctx, cycle.ID, rec)
}

func (a *Adapter) setActiveCycle(ctx context.Context, actorID, cycleID string) {
	if a.session == nil {
		return
	}
	if err := a.session.SetActiveCycle(ctx, actorID, cycleID); err != nil {
		a.logger.Warn("updating session active cycle", "actor", actorID, "error", err)
	}
}

func (a *Adapter) clearActiveCycle(ctx context.Context, actorID string) {
	if a.session == nil {
		return
	}
	if err := a.session.ClearActiveCycle(ctx, actorID); err != nil {
		a.logger.Warn("clearing session active cycle", "actor", actorID, "error", err)
	}
}
