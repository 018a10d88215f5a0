package records

import (
	"time"
)

// Factories fill defaults, mint IDs for blank ones, and run the detailed
// validator before returning, so a factory result is always a canonical,
// persistable payload. The zero fields of the partial value select the
// defaults.

// NewActor builds a canonical Actor payload.
func NewActor(partial Actor) (*Actor, error) {
	a := partial
	if a.Type == "" {
		a.Type = ActorTypeHuman
	}
	if a.ID == "" {
		a.ID = string(a.Type) + ":" + Slugify(a.DisplayName)
	}
	if a.Status == "" {
		a.Status = ActorStatusActive
	}
	if a.Roles == nil {
		a.Roles = []string{"author"}
	}
	if err := ValidateActorDetailed(&a).AsError(RecordTypeActor, a.ID); err != nil {
		return nil, err
	}
	return &a, nil
}

// NewAgent builds a canonical Agent payload.
func NewAgent(partial Agent) (*Agent, error) {
	ag := partial
	if ag.Status == "" {
		ag.Status = "active"
	}
	if ag.Engine == nil {
		ag.Engine = map[string]any{"type": "local"}
	}
	if err := ValidateAgentDetailed(&ag).AsError(RecordTypeAgent, ag.ID); err != nil {
		return nil, err
	}
	return &ag, nil
}

// NewTask builds a canonical Task payload. Blank IDs are minted from the
// title and the supplied timestamp.
func NewTask(partial Task, now time.Time) (*Task, error) {
	t := partial
	if t.ID == "" {
		t.ID = GenerateID(KindTask, t.Title, now)
	}
	if t.Status == "" {
		t.Status = TaskStatusDraft
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.CycleIDs == nil {
		t.CycleIDs = []string{}
	}
	if err := ValidateTaskDetailed(&t).AsError(RecordTypeTask, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

// NewCycle builds a canonical Cycle payload.
func NewCycle(partial Cycle, now time.Time) (*Cycle, error) {
	c := partial
	if c.ID == "" {
		c.ID = GenerateID(KindCycle, c.Title, now)
	}
	if c.Status == "" {
		c.Status = CycleStatusPlanning
	}
	if c.TaskIDs == nil {
		c.TaskIDs = []string{}
	}
	if err := ValidateCycleDetailed(&c).AsError(RecordTypeCycle, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewFeedback builds a canonical Feedback payload.
func NewFeedback(partial Feedback, now time.Time) (*Feedback, error) {
	f := partial
	if f.ID == "" {
		f.ID = GenerateID(KindFeedback, string(f.Type)+" "+f.EntityID, now)
	}
	if f.Status == "" {
		f.Status = FeedbackOpen
	}
	if err := ValidateFeedbackDetailed(&f).AsError(RecordTypeFeedback, f.ID); err != nil {
		return nil, err
	}
	return &f, nil
}

// NewExecution builds a canonical Execution payload.
func NewExecution(partial Execution, now time.Time) (*Execution, error) {
	e := partial
	if e.Type == "" {
		e.Type = ExecutionTypeProgress
	}
	if e.Title == "" {
		e.Title = e.Type + " on " + e.TaskID
	}
	if e.ID == "" {
		e.ID = GenerateID(KindExec, e.Title, now)
	}
	if err := ValidateExecutionDetailed(&e).AsError(RecordTypeExecution, e.ID); err != nil {
		return nil, err
	}
	return &e, nil
}

// NewChangelog builds a canonical Changelog payload. A blank ID is derived
// deterministically from the title slug and completedAt, so re-creating the
// same release yields the same ID.
func NewChangelog(partial Changelog) (*Changelog, error) {
	c := partial
	if c.ID == "" && c.CompletedAt > 0 {
		c.ID = GenerateID(KindChangelog, c.Title, time.Unix(c.CompletedAt, 0))
	}
	if err := ValidateChangelogDetailed(&c).AsError(RecordTypeChangelog, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}
