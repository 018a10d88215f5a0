// Package metrics exposes the task-health interface the backlog adapter
// consults before resuming a paused task. Scoring heuristics live behind
// the interface; the kernel ships only the feedback-count source.
package metrics

import (
	"context"

	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/records"
)

// TaskHealth is the health snapshot of one task.
type TaskHealth struct {
	TaskID            string `json:"taskId"`
	BlockingFeedbacks int    `json:"blockingFeedbacks"`
	OpenFeedbacks     int    `json:"openFeedbacks"`
}

// HealthSource answers task-health queries.
type HealthSource interface {
	GetTaskHealth(ctx context.Context, taskID string) (TaskHealth, error)
}

// FeedbackHealthSource derives health from the feedback log: a blocking
// feedback counts until some record resolves it via the resolvesFeedbackId
// chain.
type FeedbackHealthSource struct {
	feedback *feedback.Adapter
}

// NewFeedbackHealthSource wires the default health source.
func NewFeedbackHealthSource(fb *feedback.Adapter) *FeedbackHealthSource {
	return &FeedbackHealthSource{feedback: fb}
}

// GetTaskHealth counts the open and blocking feedback on a task.
func (s *FeedbackHealthSource) GetTaskHealth(ctx context.Context, taskID string) (TaskHealth, error) {
	health := TaskHealth{TaskID: taskID}
	all, err := s.feedback.GetFeedbackByEntity(ctx, taskID)
	if err != nil {
		return health, err
	}
	for _, fb := range all {
		if fb.Status == records.FeedbackResolved || fb.Status == records.FeedbackWontfix {
			continue
		}
		resolved, err := s.feedback.IsResolved(ctx, fb.ID)
		if err != nil {
			return health, err
		}
		if resolved {
			continue
		}
		health.OpenFeedbacks++
		if fb.Type == records.FeedbackBlocking {
			health.BlockingFeedbacks++
		}
	}
	return health, nil
}
