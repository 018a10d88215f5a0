package execution

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

type fixture struct {
	adapter *Adapter
	ident   *identity.Adapter
	tasks   *store.Store
	bus     *eventbus.Bus
	actorID string
	clock   *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New(nil)
	ident, err := identity.NewAdapter(identity.Options{
		ActorsDir: filepath.Join(dir, "actors"),
		AgentsDir: filepath.Join(dir, "agents"),
		Session:   config.NewSessionManager(filepath.Join(dir, ".session.json")),
		Bus:       bus,
	})
	require.NoError(t, err)
	actor, err := ident.CreateActor(context.Background(), records.Actor{DisplayName: "Owner"}, "")
	require.NoError(t, err)

	tasks, err := store.New(filepath.Join(dir, "tasks"), records.RecordTypeTask, ident.Resolver(), slog.Default())
	require.NoError(t, err)

	clock := &fakeClock{t: time.Unix(1756100000, 0)}
	adapter, err := NewAdapter(Options{
		Dir:      filepath.Join(dir, "executions"),
		Tasks:    tasks,
		Identity: ident,
		Bus:      bus,
		Now:      clock.now,
	})
	require.NoError(t, err)
	return &fixture{adapter: adapter, ident: ident, tasks: tasks, bus: bus, actorID: actor.ID, clock: clock}
}

func (f *fixture) seedTask(t *testing.T, title string) string {
	t.Helper()
	ctx := context.Background()
	task, err := records.NewTask(records.Task{Title: title}, f.clock.now())
	require.NoError(t, err)
	rec, err := records.NewRecord(records.RecordTypeTask, task)
	require.NoError(t, err)
	require.NoError(t, f.ident.SignRecord(ctx, rec, f.actorID, "author", ""))
	require.NoError(t, f.tasks.Put(ctx, task.ID, rec))
	return task.ID
}

func TestCreate_FirstAndSecondExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.seedTask(t, "Implement parser")

	var events []eventbus.ExecutionCreated
	f.bus.Subscribe(eventbus.EventExecutionCreated, func(ctx context.Context, evt eventbus.Event) error {
		events = append(events, evt.Payload.(eventbus.ExecutionCreated))
		return nil
	})

	first, err := f.adapter.Create(ctx, records.Execution{
		TaskID: task,
		Result: "scaffolding in place",
	}, f.actorID)
	require.NoError(t, err)
	assert.Equal(t, records.ExecutionTypeProgress, first.Type)
	assert.NotEmpty(t, first.Title, "title derived from type and task")

	second, err := f.adapter.Create(ctx, records.Execution{
		TaskID: task,
		Result: "tokenizer finished",
		Title:  "Tokenizer done",
	}, f.actorID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	require.Len(t, events, 2)
	assert.True(t, events[0].IsFirstExecution)
	assert.False(t, events[1].IsFirstExecution)
	assert.Equal(t, task, events[1].TaskID)
	assert.Equal(t, f.actorID, events[1].ActorID)
}

func TestCreate_UnknownTask(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.Create(context.Background(), records.Execution{
		TaskID: "1756100000-task-ghost",
		Result: "work on nothing",
	}, f.actorID)
	var nf *store.RecordNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCreate_NoTaskStoreSkipsCheck(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	loose, err := NewAdapter(Options{
		Dir:      filepath.Join(dir, "executions"),
		Identity: f.ident,
		Now:      f.clock.now,
	})
	require.NoError(t, err)

	_, err = loose.Create(context.Background(), records.Execution{
		TaskID: "1756100000-task-ghost",
		Result: "no task store wired",
	}, f.actorID)
	require.NoError(t, err)
}

func TestGetExecutionsByTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedTask(t, "Task alpha")
	b := f.seedTask(t, "Task bravo")

	_, err := f.adapter.Create(ctx, records.Execution{TaskID: a, Result: "alpha step one"}, f.actorID)
	require.NoError(t, err)
	_, err = f.adapter.Create(ctx, records.Execution{TaskID: a, Result: "alpha step two"}, f.actorID)
	require.NoError(t, err)
	_, err = f.adapter.Create(ctx, records.Execution{TaskID: b, Result: "bravo step one"}, f.actorID)
	require.NoError(t, err)

	forA, err := f.adapter.GetExecutionsByTask(ctx, a)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	all, err := f.adapter.GetAllExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetExecution_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.seedTask(t, "Round trip")

	created, err := f.adapter.Create(ctx, records.Execution{
		TaskID:     task,
		Result:     "full record persisted",
		Type:       "analysis",
		References: []string{"commit:abc123"},
	}, f.actorID)
	require.NoError(t, err)

	got, err := f.adapter.GetExecution(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}
