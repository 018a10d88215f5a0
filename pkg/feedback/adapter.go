// Package feedback manages immutable feedback records. State never mutates
// in place: resolving a feedback means appending a new record that points
// back via resolvesFeedbackId, which doubles as free audit history.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

const eventSource = "feedback_adapter"

// DuplicateAssignmentError reports a second open assignment of the same
// task to the same actor.
type DuplicateAssignmentError struct {
	TaskID     string
	Assignee   string
	ExistingID string
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("DuplicateAssignmentError: task %q is already assigned to %q by open feedback %q",
		e.TaskID, e.Assignee, e.ExistingID)
}

// InvalidEntityTypeError reports a feedback aimed at an unknown entity kind.
type InvalidEntityTypeError struct {
	EntityType string
}

func (e *InvalidEntityTypeError) Error() string {
	return fmt.Sprintf("InvalidEntityTypeError: %q is not a feedback entity type", e.EntityType)
}

// Adapter is the feedback facade.
type Adapter struct {
	feedbacks *store.Store
	identity  *identity.Adapter
	bus       *eventbus.Bus
	logger    *slog.Logger
	now       func() time.Time
}

// Options wires a feedback adapter.
type Options struct {
	Dir      string
	Identity *identity.Adapter
	Bus      *eventbus.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewAdapter opens the feedback store.
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
	st, err := store.New(opts.Dir, records.RecordTypeFeedback, resolver, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		feedbacks: st,
		identity:  opts.Identity,
		bus:       opts.Bus,
		logger:    opts.Logger,
		now:       opts.Now,
	}, nil
}

var validEntityTypes = map[records.FeedbackEntityType]bool{
	records.EntityTask:      true,
	records.EntityCycle:     true,
	records.EntityExecution: true,
	records.EntityChangelog: true,
	records.EntityFeedback:  true,
}

// Create validates, signs, persists, and announces a feedback record.
// A duplicate open assignment of the same task to the same actor is
// rejected; the pair may be reassigned once the earlier assignment carries
// a resolution record.
func (a *Adapter) Create(ctx context.Context, partial records.Feedback, actorID string) (*records.Feedback, error) {
	if !validEntityTypes[partial.EntityType] {
		return nil, &InvalidEntityTypeError{EntityType: string(partial.EntityType)}
	}
	fb, err := records.NewFeedback(partial, a.now())
	if err != nil {
		return nil, err
	}
	if fb.Type == records.FeedbackAssignment && fb.EntityType == records.EntityTask {
		if err := a.checkDuplicateAssignment(ctx, fb); err != nil {
			return nil, err
		}
	}

	rec, err := records.NewRecord(records.RecordTypeFeedback, fb)
	if err != nil {
		return nil, err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.feedbacks.Put(ctx, fb.ID, rec); err != nil {
		return nil, err
	}

	if a.bus != nil {
		a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventFeedbackCreated, eventSource, eventbus.FeedbackCreated{
			FeedbackID:         fb.ID,
			EntityType:         fb.EntityType,
			EntityID:           fb.EntityID,
			Type:               fb.Type,
			Status:             fb.Status,
			Content:            fb.Content,
			TriggeredBy:        actorID,
			Assignee:           fb.Assignee,
			ResolvesFeedbackID: fb.ResolvesFeedbackID,
		}))
	}
	return fb, nil
}

func (a *Adapter) checkDuplicateAssignment(ctx context.Context, fb *records.Feedback) error {
	all, err := a.GetAllFeedback(ctx)
	if err != nil {
		return err
	}
	for _, existing := range all {
		if existing.Type != records.FeedbackAssignment ||
			existing.EntityType != records.EntityTask ||
			existing.EntityID != fb.EntityID ||
			existing.Assignee != fb.Assignee {
			continue
		}
		resolved, err := a.IsResolved(ctx, existing.ID)
		if err != nil {
			return err
		}
		if !resolved {
			return &DuplicateAssignmentError{
				TaskID:     fb.EntityID,
				Assignee:   fb.Assignee,
				ExistingID: existing.ID,
			}
		}
	}
	return nil
}

// Resolve appends a resolution record for the given feedback: a new
// feedback with entityType=feedback, entityId=original and status=resolved.
// Fails when the referenced feedback does not exist.
func (a *Adapter) Resolve(ctx context.Context, feedbackID, actorID, content string) (*records.Feedback, error) {
	original, err := a.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if content == "" {
		content = "Resolved " + original.ID
	}
	return a.Create(ctx, records.Feedback{
		EntityType:         records.EntityFeedback,
		EntityID:           original.ID,
		ResolvesFeedbackID: original.ID,
		Type:               original.Type,
		Status:             records.FeedbackResolved,
		Content:            content,
	}, actorID)
}

// GetFeedback returns one feedback record.
func (a *Adapter) GetFeedback(ctx context.Context, id string) (*records.Feedback, error) {
	rec, err := a.feedbacks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Feedback](rec)
}

// GetAllFeedback returns every readable feedback record. Corrupt records
// are logged and omitted.
func (a *Adapter) GetAllFeedback(ctx context.Context) ([]records.Feedback, error) {
	ids, err := a.feedbacks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]records.Feedback, 0, len(ids))
	for _, id := range ids {
		fb, err := a.GetFeedback(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable feedback record", "id", id, "error", err)
			continue
		}
		out = append(out, *fb)
	}
	return out, nil
}

// GetFeedbackByEntity returns the feedback aimed at one entity id.
func (a *Adapter) GetFeedbackByEntity(ctx context.Context, entityID string) ([]records.Feedback, error) {
	all, err := a.GetAllFeedback(ctx)
	if err != nil {
		return nil, err
	}
	var out []records.Feedback
	for _, fb := range all {
		if fb.EntityID == entityID {
			out = append(out, fb)
		}
	}
	return out, nil
}

// IsResolved reports whether some feedback resolves the given id.
func (a *Adapter) IsResolved(ctx context.Context, feedbackID string) (bool, error) {
	all, err := a.GetAllFeedback(ctx)
	if err != nil {
		return false, err
	}
	for _, fb := range all {
		if fb.ResolvesFeedbackID == feedbackID && fb.Status == records.FeedbackResolved {
			return true, nil
		}
	}
	return false, nil
}

// OpenBlocking returns the blocking feedback on an entity that has no
// resolution record yet. The backlog adapter and the task-health source use
// this to decide pause and resume.
func (a *Adapter) OpenBlocking(ctx context.Context, entityID string) ([]records.Feedback, error) {
	direct, err := a.GetFeedbackByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	var out []records.Feedback
	for _, fb := range direct {
		if fb.Type != records.FeedbackBlocking || fb.Status == records.FeedbackResolved || fb.Status == records.FeedbackWontfix {
			continue
		}
		resolved, err := a.IsResolved(ctx, fb.ID)
		if err != nil {
			return nil, err
		}
		if !resolved {
			out = append(out, fb)
		}
	}
	return out, nil
}

// ThreadNode is one node of a feedback discussion tree.
type ThreadNode struct {
	Feedback records.Feedback `json:"feedback"`
	Children []*ThreadNode    `json:"children,omitempty"`
}

// GetFeedbackThread builds the discussion tree rooted at rootID by chasing
// records with entityType=feedback. maxDepth <= 0 means unbounded; the
// recursion otherwise stops at the depth limit.
func (a *Adapter) GetFeedbackThread(ctx context.Context, rootID string, maxDepth int) (*ThreadNode, error) {
	root, err := a.GetFeedback(ctx, rootID)
	if err != nil {
		return nil, err
	}
	all, err := a.GetAllFeedback(ctx)
	if err != nil {
		return nil, err
	}
	children := map[string][]records.Feedback{}
	for _, fb := range all {
		if fb.EntityType == records.EntityFeedback {
			children[fb.EntityID] = append(children[fb.EntityID], fb)
		}
	}
	if maxDepth <= 0 {
		maxDepth = -1 // unbounded; the counter never reaches zero
	}
	return buildThread(*root, children, maxDepth, map[string]bool{}), nil
}

func buildThread(fb records.Feedback, children map[string][]records.Feedback, depthLeft int, seen map[string]bool) *ThreadNode {
	node := &ThreadNode{Feedback: fb}
	if depthLeft == 0 || seen[fb.ID] {
		return node
	}
	seen[fb.ID] = true
	for _, child := range children[fb.ID] {
		node.Children = append(node.Children, buildThread(child, children, depthLeft-1, seen))
	}
	return node
}
