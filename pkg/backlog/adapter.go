// Package backlog is the task and cycle state engine. Every status change
// is gated by the workflow methodology, re-signs the record, and publishes
// an event; cross-entity reactions (blocking feedback pauses, first
// execution activates, changelog archives) arrive through bus subscriptions
// registered at construction.
package backlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/metrics"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
	"github.com/gitgov-io/gitgov/pkg/workflow"
)

const eventSource = "backlog_adapter"

// Adapter is the backlog facade.
type Adapter struct {
	tasks       *store.Store
	cycles      *store.Store
	identity    *identity.Adapter
	methodology workflow.Methodology
	health      metrics.HealthSource
	feedback    *feedback.Adapter
	session     *config.SessionManager
	bus         *eventbus.Bus
	logger      *slog.Logger
	now         func() time.Time
}

// Options wires a backlog adapter. Methodology defaults to the embedded
// rule set; Feedback and Health enable the blocking-feedback reactions and
// may be nil in minimal setups.
type Options struct {
	TasksDir    string
	CyclesDir   string
	Identity    *identity.Adapter
	Methodology workflow.Methodology
	Health      metrics.HealthSource
	Feedback    *feedback.Adapter
	Session     *config.SessionManager
	Bus         *eventbus.Bus
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewAdapter opens the task and cycle stores and registers the cross-entity
// event subscriptions.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Methodology == nil {
		opts.Methodology = workflow.Default()
	}
	var resolver store.PublicKeyResolver
	if opts.Identity != nil {
		resolver = opts.Identity.Resolver()
	}
	tasks, err := store.New(opts.TasksDir, records.RecordTypeTask, resolver, opts.Logger)
	if err != nil {
		return nil, err
	}
	cycles, err := store.New(opts.CyclesDir, records.RecordTypeCycle, resolver, opts.Logger)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		tasks:       tasks,
		cycles:      cycles,
		identity:    opts.Identity,
		methodology: opts.Methodology,
		health:      opts.Health,
		feedback:    opts.Feedback,
		session:     opts.Session,
		bus:         opts.Bus,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if a.bus != nil {
		a.bus.Subscribe(eventbus.EventFeedbackCreated, a.handleFeedbackCreated)
		a.bus.Subscribe(eventbus.EventExecutionCreated, a.handleExecutionCreated)
		a.bus.Subscribe(eventbus.EventChangelogCreated, a.handleChangelogCreated)
		a.bus.Subscribe(eventbus.EventCycleStatusChanged, a.handleCycleStatusChanged)
		a.bus.Subscribe(eventbus.EventDailyTick, a.handleDailyTick)
	}
	return a, nil
}

// Tasks exposes the task store for adapters that verify task references.
func (a *Adapter) Tasks() *store.Store { return a.tasks }

// Cycles exposes the cycle store for adapters that verify cycle references.
func (a *Adapter) Cycles() *store.Store { return a.cycles }

// CreateTask validates, signs, persists a new task, and publishes
// task.created.
func (a *Adapter) CreateTask(ctx context.Context, partial records.Task, actorID string) (*records.Task, error) {
	task, err := records.NewTask(partial, a.now())
	if err != nil {
		return nil, err
	}
	rec, err := records.NewRecord(records.RecordTypeTask, task)
	if err != nil {
		return nil, err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.tasks.Put(ctx, task.ID, rec); err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.EventTaskCreated, eventbus.TaskCreated{TaskID: task.ID, ActorID: actorID})
	return task, nil
}

// GetTask returns one task.
func (a *Adapter) GetTask(ctx context.Context, id string) (*records.Task, error) {
	rec, err := a.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Task](rec)
}

// GetAllTasks returns every readable task. Corrupt records are logged and
// omitted.
func (a *Adapter) GetAllTasks(ctx context.Context) ([]records.Task, error) {
	ids, err := a.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]records.Task, 0, len(ids))
	for _, id := range ids {
		task, err := a.GetTask(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable task record", "id", id, "error", err)
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

// TaskUpdate is the mutable slice of a task. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *string
	Notes       *string
	Tags        []string
	Metadata    map[string]any
}

// UpdateTask applies a metadata-level update (never a status change) and
// re-signs the record. Terminal tasks reject every update.
func (a *Adapter) UpdateTask(ctx context.Context, taskID, actorID string, update TaskUpdate) (*records.Task, error) {
	rec, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task, err := records.Decode[records.Task](rec)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, &ProtocolViolationError{
			EntityID: taskID, From: string(task.Status),
			Reason: "terminal tasks are immutable",
		}
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Notes != nil {
		task.Notes = *update.Notes
	}
	if update.Tags != nil {
		task.Tags = update.Tags
	}
	if update.Metadata != nil {
		task.Metadata = update.Metadata
	}
	if err := records.ValidateTaskDetailed(task).AsError(records.RecordTypeTask, taskID); err != nil {
		return nil, err
	}
	if err := a.writeTask(ctx, rec, task, actorID, "author"); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask physically removes a draft task. Any other state rejects.
func (a *Adapter) DeleteTask(ctx context.Context, taskID string) error {
	task, err := a.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != records.TaskStatusDraft {
		return &ProtocolViolationError{
			EntityID: taskID, From: string(task.Status),
			Reason: "only draft tasks may be deleted",
		}
	}
	return a.tasks.Delete(ctx, taskID)
}

// SubmitTask moves a draft into review.
func (a *Adapter) SubmitTask(ctx context.Context, taskID, actorID string) (*records.Task, error) {
	return a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusReview, Command: "submit",
	})
}

// ApproveTask moves a reviewed task into ready.
func (a *Adapter) ApproveTask(ctx context.Context, taskID, actorID string) (*records.Task, error) {
	return a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusReady, Command: "approve",
	})
}

// ActivateTask starts work on a ready task and records it as the actor's
// active task.
func (a *Adapter) ActivateTask(ctx context.Context, taskID, actorID string) (*records.Task, error) {
	task, err := a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusActive, Command: "activate",
	})
	if err != nil {
		return nil, err
	}
	a.setActiveTask(ctx, actorID, taskID)
	return task, nil
}

// PauseTask suspends an active task and clears the actor's active task.
func (a *Adapter) PauseTask(ctx context.Context, taskID, actorID, reason string) (*records.Task, error) {
	task, err := a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusPaused, Command: "pause", Reason: reason,
	})
	if err != nil {
		return nil, err
	}
	a.clearActiveTask(ctx, actorID)
	return task, nil
}

// ResumeTask returns a paused task to active. Open blocking feedback rejects
// the resume unless force is set.
func (a *Adapter) ResumeTask(ctx context.Context, taskID, actorID string, force bool) (*records.Task, error) {
	if !force && a.health != nil {
		health, err := a.health.GetTaskHealth(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if health.BlockingFeedbacks > 0 {
			return nil, &BlockingFeedbackError{TaskID: taskID, Count: health.BlockingFeedbacks}
		}
	}
	task, err := a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusActive, Command: "resume",
	})
	if err != nil {
		return nil, err
	}
	a.setActiveTask(ctx, actorID, taskID)
	return task, nil
}

// CompleteTask marks an active task done and clears the actor's active task.
func (a *Adapter) CompleteTask(ctx context.Context, taskID, actorID string) (*records.Task, error) {
	task, err := a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusDone, Command: "complete",
	})
	if err != nil {
		return nil, err
	}
	a.clearActiveTask(ctx, actorID)
	return task, nil
}

// DiscardTask cancels or rejects a task from review, ready, or active,
// prepending the decision marker and timestamp to its notes.
func (a *Adapter) DiscardTask(ctx context.Context, taskID, actorID, reason string) (*records.Task, error) {
	current, err := a.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	marker := "[CANCELLED]"
	if current.Status == records.TaskStatusReview {
		marker = "[REJECTED]"
	}
	stamp := a.now().UTC().Format(time.RFC3339)
	task, err := a.transition(ctx, transitionRequest{
		TaskID: taskID, ActorID: actorID,
		To: records.TaskStatusDiscarded, Command: "discard", Reason: reason,
		Mutate: func(t *records.Task) {
			note := fmt.Sprintf("%s %s", marker, stamp)
			if reason != "" {
				note += ": " + reason
			}
			if t.Notes != "" {
				note += "\n" + t.Notes
			}
			t.Notes = note
		},
	})
	if err != nil {
		return nil, err
	}
	a.clearActiveTask(ctx, actorID)
	return task, nil
}

// Lint is reserved by the protocol surface.
func (a *Adapter) Lint(ctx context.Context) error {
	return &NotImplementedError{Op: "lint"}
}

// Audit is reserved by the protocol surface.
func (a *Adapter) Audit(ctx context.Context) error {
	return &NotImplementedError{Op: "audit"}
}

// ProcessChanges is reserved by the protocol surface.
func (a *Adapter) ProcessChanges(ctx context.Context) error {
	return &NotImplementedError{Op: "processChanges"}
}

type transitionRequest struct {
	TaskID  string
	ActorID string
	To      records.TaskStatus
	Command string
	Reason  string
	System  bool
	Mutate  func(*records.Task)
}

// transition is the single gate every status change goes through: load,
// consult the methodology, mutate, re-sign, persist, publish.
func (a *Adapter) transition(ctx context.Context, req transitionRequest) (*records.Task, error) {
	rec, err := a.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	task, err := records.Decode[records.Task](rec)
	if err != nil {
		return nil, err
	}
	from := task.Status

	tctx := workflow.TransitionContext{Command: req.Command, System: req.System}
	role := "system"
	if !req.System {
		actor, err := a.identity.GetActor(ctx, req.ActorID)
		if err != nil {
			return nil, err
		}
		tctx.ActorRoles = actor.Roles
		role = signingRole(actor.Roles)
	}
	rule := a.methodology.GetTransitionRule(from, req.To, tctx)
	if rule == nil {
		return nil, violation(req.TaskID, from, req.To, "no methodology rule authorizes this transition for the acting context")
	}

	task.Status = req.To
	if req.Mutate != nil {
		req.Mutate(task)
	}
	if err := a.writeTask(ctx, rec, task, req.ActorID, role); err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.EventTaskStatusChanged, eventbus.TaskStatusChanged{
		TaskID:    req.TaskID,
		OldStatus: from,
		NewStatus: req.To,
		ActorID:   req.ActorID,
		Reason:    req.Reason,
	})
	return task, nil
}

func (a *Adapter) writeTask(ctx context.Context, rec *records.Record, task *records.Task, actorID, role string) error {
	if err := rec.SetPayload(task); err != nil {
		return err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, role, ""); err != nil {
		return err
	}
	return a.tasks.Put(ctx, task.ID, rec)
}

// signingRole picks the role recorded in the signature: "admin" when the
// actor holds it, else the actor's first role, else "author".
func signingRole(roles []string) string {
	for _, r := range roles {
		if r == "admin" {
			return "admin"
		}
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return "author"
}

func (a *Adapter) publish(ctx context.Context, evtType string, payload any) {
	if a.bus != nil {
		a.bus.Publish(ctx, eventbus.NewEvent(evtType, eventSource, payload))
	}
}

func (a *Adapter) setActiveTask(ctx context.Context, actorID, taskID string) {
	if a.session == nil {
		return
	}
	if err := a.session.SetActiveTask(ctx, actorID, taskID); err != nil {
		a.logger.Warn("updating session active task", "actor", actorID, "error", err)
	}
}

func (a *Adapter) clearActiveTask(ctx context.Context, actorID string) {
	if a.session == nil {
		return
	}
	if err := a.session.ClearActiveTask(ctx, actorID); err != nil {
		a.logger.Warn("clearing session active task", "actor", actorID, "error", err)
	}
}
