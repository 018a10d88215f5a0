package backlog

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/records"
)

func (f *fixture) createCycle(t *testing.T, title string) *records.Cycle {
	t.Helper()
	cycle, err := f.backlog.CreateCycle(context.Background(), records.Cycle{Title: title}, f.admin)
	require.NoError(t, err)
	return cycle
}

func TestCycle_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cycle := f.createCycle(t, "Sprint one")
	assert.Equal(t, records.CycleStatusPlanning, cycle.Status)

	status := records.CycleStatusActive
	updated, err := f.backlog.UpdateCycle(ctx, cycle.ID, f.admin, CycleUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, records.CycleStatusActive, updated.Status)

	st, err := f.session.GetActorState(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, cycle.ID, st.ActiveCycleID, "activating a cycle records it in the session")

	status = records.CycleStatusCompleted
	_, err = f.backlog.UpdateCycle(ctx, cycle.ID, f.admin, CycleUpdate{Status: &status})
	require.NoError(t, err)

	st, err = f.session.GetActorState(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, st.ActiveCycleID, "completing a cycle clears it from the session")

	// Terminal cycles reject any further update.
	title := "renamed"
	_, err = f.backlog.UpdateCycle(ctx, cycle.ID, f.admin, CycleUpdate{Title: &title})
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
}

func TestCycle_TaskMembershipInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cycle := f.createCycle(t, "Membership")
	task := f.createTask(t, "Member task")

	require.NoError(t, f.backlog.AddTaskToCycle(ctx, cycle.ID, task.ID, f.admin))

	gotCycle, err := f.backlog.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	gotTask, err := f.backlog.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Contains(t, gotCycle.TaskIDs, task.ID)
	assert.Contains(t, gotTask.CycleIDs, cycle.ID)

	// Re-adding is a no-op, not a duplicate.
	require.NoError(t, f.backlog.AddTaskToCycle(ctx, cycle.ID, task.ID, f.admin))
	gotCycle, err = f.backlog.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Len(t, gotCycle.TaskIDs, 1)

	require.NoError(t, f.backlog.RemoveTasksFromCycle(ctx, cycle.ID, []string{task.ID}, f.admin))
	gotCycle, err = f.backlog.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	gotTask, err = f.backlog.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.NotContains(t, gotCycle.TaskIDs, task.ID)
	assert.NotContains(t, gotTask.CycleIDs, cycle.ID)
}

func TestMoveTasksBetweenCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	source := f.createCycle(t, "Source sprint")
	target := f.createCycle(t, "Target sprint")
	a := f.createTask(t, "Task alpha")
	b := f.createTask(t, "Task bravo")
	require.NoError(t, f.backlog.AddTaskToCycle(ctx, source.ID, a.ID, f.admin))
	require.NoError(t, f.backlog.AddTaskToCycle(ctx, source.ID, b.ID, f.admin))

	require.NoError(t, f.backlog.MoveTasksBetweenCycles(ctx, target.ID, []string{a.ID, b.ID}, source.ID, f.admin))

	gotSource, err := f.backlog.GetCycle(ctx, source.ID)
	require.NoError(t, err)
	gotTarget, err := f.backlog.GetCycle(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, gotSource.TaskIDs)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, gotTarget.TaskIDs)

	for _, id := range []string{a.ID, b.ID} {
		task, err := f.backlog.GetTask(ctx, id)
		require.NoError(t, err)
		assert.True(t, slices.Contains(task.CycleIDs, target.ID))
		assert.False(t, slices.Contains(task.CycleIDs, source.ID))
	}
}

func TestMoveTasksBetweenCycles_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	source := f.createCycle(t, "Source sprint")
	target := f.createCycle(t, "Target sprint")
	inside := f.createTask(t, "Inside task")
	outside := f.createTask(t, "Outside task")
	require.NoError(t, f.backlog.AddTaskToCycle(ctx, source.ID, inside.ID, f.admin))

	var ae *AtomicOperationError
	err := f.backlog.MoveTasksBetweenCycles(ctx, source.ID, []string{inside.ID}, source.ID, f.admin)
	require.ErrorAs(t, err, &ae)

	err = f.backlog.MoveTasksBetweenCycles(ctx, target.ID, []string{inside.ID, outside.ID}, source.ID, f.admin)
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.RolledBack)

	// Nothing moved.
	gotSource, err := f.backlog.GetCycle(ctx, source.ID)
	require.NoError(t, err)
	gotTarget, err := f.backlog.GetCycle(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{inside.ID}, gotSource.TaskIDs)
	assert.Empty(t, gotTarget.TaskIDs)
}

func TestCycleCompletion_Propagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	child1 := f.createCycle(t, "Child one")
	child2 := f.createCycle(t, "Child two")
	parent, err := f.backlog.CreateCycle(ctx, records.Cycle{
		Title:         "Parent cycle",
		ChildCycleIDs: []string{child1.ID, child2.ID},
	}, f.admin)
	require.NoError(t, err)

	var changes []eventbus.CycleStatusChanged
	f.bus.Subscribe(eventbus.EventCycleStatusChanged, func(ctx context.Context, evt eventbus.Event) error {
		changes = append(changes, evt.Payload.(eventbus.CycleStatusChanged))
		return nil
	})

	completed := records.CycleStatusCompleted
	_, err = f.backlog.UpdateCycle(ctx, child1.ID, f.admin, CycleUpdate{Status: &completed})
	require.NoError(t, err)

	got, err := f.backlog.GetCycle(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, records.CycleStatusPlanning, got.Status, "one open sibling keeps the parent open")

	_, err = f.backlog.UpdateCycle(ctx, child2.ID, f.admin, CycleUpdate{Status: &completed})
	require.NoError(t, err)

	got, err = f.backlog.GetCycle(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, records.CycleStatusCompleted, got.Status)
	assert.Len(t, changes, 3, "two direct updates plus the propagated one")
}
