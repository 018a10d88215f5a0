// Package execution keeps the append-only execution log: one signed record
// per unit of work done on a task. Records are never updated or deleted.
package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

const eventSource = "execution_adapter"

// Adapter is the execution facade.
type Adapter struct {
	executions *store.Store
	// tasks is optional; when present, Create verifies the referenced task
	// exists. Absent, the check is skipped gracefully.
	tasks    *store.Store
	identity *identity.Adapter
	bus      *eventbus.Bus
	logger   *slog.Logger
	now      func() time.Time
}

// Options wires an execution adapter.
type Options struct {
	Dir      string
	Tasks    *store.Store
	Identity *identity.Adapter
	Bus      *eventbus.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewAdapter opens the execution store.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var resolver store.PublicKeyResolver
	if opts.Identity != nil {
		resolver = opts.Identity.Resolver()
	}
	st, err := store.New(opts.Dir, records.RecordTypeExecution, resolver, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		executions: st,
		tasks:      opts.Tasks,
		identity:   opts.Identity,
		bus:        opts.Bus,
		logger:     opts.Logger,
		now:        opts.Now,
	}, nil
}

// Create validates, signs, and appends an execution record, then publishes
// execution.created carrying whether this was the task's first execution
// (which activates a ready task via the backlog adapter's subscription).
func (a *Adapter) Create(ctx context.Context, partial records.Execution, actorID string) (*records.Execution, error) {
	exec, err := records.NewExecution(partial, a.now())
	if err != nil {
		return nil, err
	}
	if a.tasks != nil {
		if _, err := a.tasks.Get(ctx, exec.TaskID); err != nil {
			return nil, err
		}
	}

	rec, err := records.NewRecord(records.RecordTypeExecution, exec)
	if err != nil {
		return nil, err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.executions.Put(ctx, exec.ID, rec); err != nil {
		return nil, err
	}

	count, err := a.countForTask(ctx, exec.TaskID)
	if err != nil {
		return nil, err
	}
	if a.bus != nil {
		a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventExecutionCreated, eventSource, eventbus.ExecutionCreated{
			ExecutionID:      exec.ID,
			TaskID:           exec.TaskID,
			ActorID:          actorID,
			IsFirstExecution: count == 1,
		}))
	}
	return exec, nil
}

func (a *Adapter) countForTask(ctx context.Context, taskID string) (int, error) {
	execs, err := a.GetExecutionsByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return len(execs), nil
}

// GetExecution returns one execution record.
func (a *Adapter) GetExecution(ctx context.Context, id string) (*records.Execution, error) {
	rec, err := a.executions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Execution](rec)
}

// GetAllExecutions returns every readable execution record. Corrupt records
// are logged and omitted.
func (a *Adapter) GetAllExecutions(ctx context.Context) ([]records.Execution, error) {
	ids, err := a.executions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]records.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := a.GetExecution(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable execution record", "id", id, "error", err)
			continue
		}
		out = append(out, *exec)
	}
	return out, nil
}

// GetExecutionsByTask returns the execution log of one task.
func (a *Adapter) GetExecutionsByTask(ctx context.Context, taskID string) ([]records.Execution, error) {
	all, err := a.GetAllExecutions(ctx)
	if err != nil {
		return nil, err
	}
	var out []records.Execution
	for _, exec := range all {
		if exec.TaskID == taskID {
			out = append(out, exec)
		}
	}
	return out, nil
}
