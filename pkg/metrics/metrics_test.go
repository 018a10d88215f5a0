package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
)

func TestFeedbackHealthSource(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	bus := eventbus.New(nil)
	ident, err := identity.NewAdapter(identity.Options{
		ActorsDir: filepath.Join(dir, "actors"),
		AgentsDir: filepath.Join(dir, "agents"),
		Session:   config.NewSessionManager(filepath.Join(dir, ".session.json")),
		Bus:       bus,
	})
	require.NoError(t, err)
	actor, err := ident.CreateActor(ctx, records.Actor{DisplayName: "Owner"}, "")
	require.NoError(t, err)

	clock := time.Unix(1756100000, 0)
	fb, err := feedback.NewAdapter(feedback.Options{
		Dir:      filepath.Join(dir, "feedback"),
		Identity: ident,
		Bus:      bus,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)

	taskID := records.GenerateID(records.KindTask, "subject", clock)
	blocker, err := fb.Create(ctx, records.Feedback{
		EntityType: records.EntityTask, EntityID: taskID,
		Type: records.FeedbackBlocking, Content: "broken pipeline",
	}, actor.ID)
	require.NoError(t, err)
	_, err = fb.Create(ctx, records.Feedback{
		EntityType: records.EntityTask, EntityID: taskID,
		Type: records.FeedbackSuggestion, Content: "rename the flag",
	}, actor.ID)
	require.NoError(t, err)

	source := NewFeedbackHealthSource(fb)
	health, err := source.GetTaskHealth(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 2, health.OpenFeedbacks)
	assert.Equal(t, 1, health.BlockingFeedbacks)

	_, err = fb.Resolve(ctx, blocker.ID, actor.ID, "pipeline fixed")
	require.NoError(t, err)

	health, err = source.GetTaskHealth(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, health.OpenFeedbacks)
	assert.Equal(t, 0, health.BlockingFeedbacks)
}
