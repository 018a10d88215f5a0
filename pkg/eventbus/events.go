package eventbus

import "github.com/gitgov-io/gitgov/pkg/records"

// Core event types published by the adapters.
const (
	EventTaskCreated       = "task.created"
	EventTaskStatusChanged = "task.status.changed"

	EventCycleCreated       = "cycle.created"
	EventCycleStatusChanged = "cycle.status.changed"

	EventExecutionCreated = "execution.created"
	EventFeedbackCreated  = "feedback.created"
	EventChangelogCreated = "changelog.created"

	EventActorCreated    = "identity.actor.created"
	EventActorRevoked    = "identity.actor.revoked"
	EventAgentRegistered = "identity.agent.registered"

	EventDailyTick = "system.daily_tick"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// TaskCreated is the payload of task.created.
type TaskCreated struct {
	TaskID  string `json:"taskId"`
	ActorID string `json:"actorId"`
}

// TaskStatusChanged is the payload of task.status.changed.
type TaskStatusChanged struct {
	TaskID    string             `json:"taskId"`
	OldStatus records.TaskStatus `json:"oldStatus"`
	NewStatus records.TaskStatus `json:"newStatus"`
	ActorID   string             `json:"actorId"`
	Reason    string             `json:"reason,omitempty"`
}

// CycleCreated is the payload of cycle.created.
type CycleCreated struct {
	CycleID string `json:"cycleId"`
	ActorID string `json:"actorId"`
}

// CycleStatusChanged is the payload of cycle.status.changed.
type CycleStatusChanged struct {
	CycleID     string              `json:"cycleId"`
	OldStatus   records.CycleStatus `json:"oldStatus"`
	NewStatus   records.CycleStatus `json:"newStatus"`
	TriggeredBy string              `json:"triggeredBy"`
}

// ExecutionCreated is the payload of execution.created.
type ExecutionCreated struct {
	ExecutionID      string `json:"executionId"`
	TaskID           string `json:"taskId"`
	ActorID          string `json:"actorId"`
	IsFirstExecution bool   `json:"isFirstExecution"`
}

// FeedbackCreated is the payload of feedback.created.
type FeedbackCreated struct {
	FeedbackID         string                     `json:"feedbackId"`
	EntityType         records.FeedbackEntityType `json:"entityType"`
	EntityID           string                     `json:"entityId"`
	Type               records.FeedbackType       `json:"type"`
	Status             records.FeedbackStatus     `json:"status"`
	Content            string                     `json:"content"`
	TriggeredBy        string                     `json:"triggeredBy"`
	Assignee           string                     `json:"assignee,omitempty"`
	ResolvesFeedbackID string                     `json:"resolvesFeedbackId,omitempty"`
}

// ChangelogCreated is the payload of changelog.created.
type ChangelogCreated struct {
	ChangelogID  string   `json:"changelogId"`
	RelatedTasks []string `json:"relatedTasks"`
	Title        string   `json:"title"`
	Version      string   `json:"version,omitempty"`
}

// ActorCreated is the payload of identity.actor.created.
type ActorCreated struct {
	ActorID     string `json:"actorId"`
	ActorType   string `json:"actorType"`
	IsBootstrap bool   `json:"isBootstrap"`
}

// ActorRevoked is the payload of identity.actor.revoked.
type ActorRevoked struct {
	ActorID      string `json:"actorId"`
	RevokedBy    string `json:"revokedBy"`
	Reason       string `json:"reason,omitempty"`
	SupersededBy string `json:"supersededBy,omitempty"`
}

// AgentRegistered is the payload of identity.agent.registered.
type AgentRegistered struct {
	AgentID string `json:"agentId"`
}

// DailyTick is the payload of system.daily_tick.
type DailyTick struct {
	Date string `json:"date"`
}
