package backlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/changelog"
	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/execution"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/metrics"
	"github.com/gitgov-io/gitgov/pkg/records"
)

// fixture wires the full kernel: identity, feedback, execution, changelog,
// metrics, and the backlog engine, all sharing one bus and one session.
type fixture struct {
	backlog    *Adapter
	feedback   *feedback.Adapter
	executions *execution.Adapter
	changelogs *changelog.Adapter
	ident      *identity.Adapter
	session    *config.SessionManager
	bus        *eventbus.Bus
	admin      string
	clock      *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	bus := eventbus.New(nil)
	session := config.NewSessionManager(filepath.Join(dir, ".session.json"))
	ident, err := identity.NewAdapter(identity.Options{
		ActorsDir: filepath.Join(dir, "actors"),
		AgentsDir: filepath.Join(dir, "agents"),
		Session:   session,
		Bus:       bus,
	})
	require.NoError(t, err)
	admin, err := ident.CreateActor(ctx, records.Actor{
		DisplayName: "Owner",
		Roles:       []string{"admin"},
	}, "")
	require.NoError(t, err)

	clock := &fakeClock{t: time.Unix(1756100000, 0)}
	fb, err := feedback.NewAdapter(feedback.Options{
		Dir:      filepath.Join(dir, "feedback"),
		Identity: ident,
		Bus:      bus,
		Now:      clock.now,
	})
	require.NoError(t, err)

	bl, err := NewAdapter(Options{
		TasksDir:  filepath.Join(dir, "tasks"),
		CyclesDir: filepath.Join(dir, "cycles"),
		Identity:  ident,
		Health:    metrics.NewFeedbackHealthSource(fb),
		Feedback:  fb,
		Session:   session,
		Bus:       bus,
		Now:       clock.now,
	})
	require.NoError(t, err)

	execs, err := execution.NewAdapter(execution.Options{
		Dir:      filepath.Join(dir, "executions"),
		Tasks:    bl.tasks,
		Identity: ident,
		Bus:      bus,
		Now:      clock.now,
	})
	require.NoError(t, err)

	cls, err := changelog.NewAdapter(changelog.Options{
		Dir:      filepath.Join(dir, "changelogs"),
		Tasks:    bl.tasks,
		Cycles:   bl.cycles,
		Identity: ident,
		Bus:      bus,
	})
	require.NoError(t, err)

	return &fixture{
		backlog:    bl,
		feedback:   fb,
		executions: execs,
		changelogs: cls,
		ident:      ident,
		session:    session,
		bus:        bus,
		admin:      admin.ID,
		clock:      clock,
	}
}

func (f *fixture) createTask(t *testing.T, title string) *records.Task {
	t.Helper()
	task, err := f.backlog.CreateTask(context.Background(), records.Task{Title: title}, f.admin)
	require.NoError(t, err)
	return task
}

// advance walks a draft task toward the wanted status through the normal
// command sequence.
func (f *fixture) advance(t *testing.T, taskID string, to records.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		target records.TaskStatus
		move   func() error
	}{
		{records.TaskStatusReview, func() error { _, err := f.backlog.SubmitTask(ctx, taskID, f.admin); return err }},
		{records.TaskStatusReady, func() error { _, err := f.backlog.ApproveTask(ctx, taskID, f.admin); return err }},
		{records.TaskStatusActive, func() error { _, err := f.backlog.ActivateTask(ctx, taskID, f.admin); return err }},
		{records.TaskStatusDone, func() error { _, err := f.backlog.CompleteTask(ctx, taskID, f.admin); return err }},
	}
	for _, step := range steps {
		require.NoError(t, step.move())
		if step.target == to {
			return
		}
	}
	t.Fatalf("cannot advance to %s", to)
}

func (f *fixture) status(t *testing.T, taskID string) records.TaskStatus {
	t.Helper()
	task, err := f.backlog.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	return task.Status
}

func TestTaskLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var changes []eventbus.TaskStatusChanged
	f.bus.Subscribe(eventbus.EventTaskStatusChanged, func(ctx context.Context, evt eventbus.Event) error {
		changes = append(changes, evt.Payload.(eventbus.TaskStatusChanged))
		return nil
	})

	task := f.createTask(t, "Build the exporter")
	assert.Equal(t, records.TaskStatusDraft, task.Status)

	f.advance(t, task.ID, records.TaskStatusDone)
	assert.Equal(t, records.TaskStatusDone, f.status(t, task.ID))

	require.Len(t, changes, 4)
	assert.Equal(t, records.TaskStatusDraft, changes[0].OldStatus)
	assert.Equal(t, records.TaskStatusDone, changes[3].NewStatus)

	// Completing clears the actor's active task.
	st, err := f.session.GetActorState(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, st.ActiveTaskID)
}

func TestActivate_SetsSessionActiveTask(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, "Session bookkeeping")
	f.advance(t, task.ID, records.TaskStatusActive)

	st, err := f.session.GetActorState(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Equal(t, task.ID, st.ActiveTaskID)
}

func TestTransition_IllegalSourceState(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, "Skip the queue")

	_, err := f.backlog.ActivateTask(context.Background(), task.ID, f.admin)
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, records.TaskStatusDraft, f.status(t, task.ID), "failed transition leaves the task unchanged")
}

func TestTransition_RequiresCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, err := f.ident.CreateActor(ctx, records.Actor{
		DisplayName: "Plain Author",
		Roles:       []string{"author"},
	}, f.admin)
	require.NoError(t, err)

	task := f.createTask(t, "Guarded approval")
	_, err = f.backlog.SubmitTask(ctx, task.ID, author.ID)
	require.NoError(t, err, "authors may submit")

	_, err = f.backlog.ApproveTask(ctx, task.ID, author.ID)
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv, "approval needs approver:product")

	_, err = f.backlog.ApproveTask(ctx, task.ID, f.admin)
	require.NoError(t, err, "admin bypasses capability checks")
}

func TestPauseResume_ViaBlockingFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.createTask(t, "Interrupted work")
	f.advance(t, task.ID, records.TaskStatusActive)

	var changes []eventbus.TaskStatusChanged
	f.bus.Subscribe(eventbus.EventTaskStatusChanged, func(ctx context.Context, evt eventbus.Event) error {
		changes = append(changes, evt.Payload.(eventbus.TaskStatusChanged))
		return nil
	})

	blocker, err := f.feedback.Create(ctx, records.Feedback{
		EntityType: records.EntityTask,
		EntityID:   task.ID,
		Type:       records.FeedbackBlocking,
		Content:    "ci is red",
	}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusPaused, f.status(t, task.ID))
	require.Len(t, changes, 1)
	assert.Equal(t, records.TaskStatusActive, changes[0].OldStatus)
	assert.Equal(t, records.TaskStatusPaused, changes[0].NewStatus)

	// Resolving the last blocking feedback resumes automatically.
	_, err = f.feedback.Resolve(ctx, blocker.ID, f.admin, "ci green again")
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusActive, f.status(t, task.ID))
}

func TestResume_BlockedWithoutForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.createTask(t, "Forced resume")
	f.advance(t, task.ID, records.TaskStatusActive)

	_, err := f.feedback.Create(ctx, records.Feedback{
		EntityType: records.EntityTask,
		EntityID:   task.ID,
		Type:       records.FeedbackBlocking,
		Content:    "still broken",
	}, f.admin)
	require.NoError(t, err)
	require.Equal(t, records.TaskStatusPaused, f.status(t, task.ID))

	_, err = f.backlog.ResumeTask(ctx, task.ID, f.admin, false)
	var bf *BlockingFeedbackError
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, 1, bf.Count)

	_, err = f.backlog.ResumeTask(ctx, task.ID, f.admin, true)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusActive, f.status(t, task.ID))
}

func TestFirstExecution_ActivatesReadyTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.createTask(t, "Kickoff by execution")
	f.advance(t, task.ID, records.TaskStatusReady)

	_, err := f.executions.Create(ctx, records.Execution{
		TaskID: task.ID,
		Result: "first run OK today",
	}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusActive, f.status(t, task.ID))

	// A second execution must not re-trigger anything.
	_, err = f.executions.Create(ctx, records.Execution{
		TaskID: task.ID,
		Result: "second run OK too",
	}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusActive, f.status(t, task.ID))
}

func TestChangelog_ArchivesDoneTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.createTask(t, "Shippable work")
	f.advance(t, task.ID, records.TaskStatusDone)

	_, err := f.changelogs.Create(ctx, records.Changelog{
		Title:        "Release one",
		Description:  "initial release shipped to users",
		RelatedTasks: []string{task.ID},
		CompletedAt:  f.clock.now().Unix(),
	}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusArchived, f.status(t, task.ID))
}

func TestDiscard_NotePrefixes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rejected := f.createTask(t, "Rejected in review")
	f.advance(t, rejected.ID, records.TaskStatusReview)
	_, err := f.backlog.DiscardTask(ctx, rejected.ID, f.admin, "out of scope")
	require.NoError(t, err)
	got, err := f.backlog.GetTask(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, records.TaskStatusDiscarded, got.Status)
	assert.Contains(t, got.Notes, "[REJECTED]")
	assert.Contains(t, got.Notes, "out of scope")

	cancelled := f.createTask(t, "Cancelled while active")
	f.advance(t, cancelled.ID, records.TaskStatusActive)
	_, err = f.backlog.DiscardTask(ctx, cancelled.ID, f.admin, "priorities changed")
	require.NoError(t, err)
	got, err = f.backlog.GetTask(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Notes, "[CANCELLED]")
}

func TestUpdateTask_TerminalRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.createTask(t, "Frozen after discard")
	f.advance(t, task.ID, records.TaskStatusReview)
	_, err := f.backlog.DiscardTask(ctx, task.ID, f.admin, "")
	require.NoError(t, err)

	title := "New title"
	_, err = f.backlog.UpdateTask(ctx, task.ID, f.admin, TaskUpdate{Title: &title})
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
}

func TestDeleteTask_DraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.createTask(t, "Ephemeral draft")
	require.NoError(t, f.backlog.DeleteTask(ctx, draft.ID))
	_, err := f.backlog.GetTask(ctx, draft.ID)
	require.Error(t, err)

	kept := f.createTask(t, "Submitted and kept")
	f.advance(t, kept.ID, records.TaskStatusReview)
	err = f.backlog.DeleteTask(ctx, kept.ID)
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
}

func TestReservedOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ni *NotImplementedError
	require.ErrorAs(t, f.backlog.Lint(ctx), &ni)
	require.ErrorAs(t, f.backlog.Audit(ctx), &ni)
	require.ErrorAs(t, f.backlog.ProcessChanges(ctx), &ni)
}

func TestDailyTick_NoOp(t *testing.T) {
	f := newFixture(t)
	f.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventDailyTick, "test", eventbus.DailyTick{Date: "2026-08-25"}))
}
