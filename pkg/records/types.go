// Package records defines the signed record model shared by every GitGov
// adapter: the header/payload envelope, the typed payloads for each record
// kind, the ID grammar, and the factories and validators that produce
// canonical payloads.
package records

import (
	"encoding/json"

	"github.com/gitgov-io/gitgov/pkg/crypto"
)

// ProtocolVersion is the record schema version written into new headers.
const ProtocolVersion = "1.0.0"

// RecordType identifies the payload kind carried by a record.
type RecordType string

const (
	RecordTypeActor     RecordType = "actor"
	RecordTypeAgent     RecordType = "agent"
	RecordTypeTask      RecordType = "task"
	RecordTypeCycle     RecordType = "cycle"
	RecordTypeFeedback  RecordType = "feedback"
	RecordTypeExecution RecordType = "execution"
	RecordTypeChangelog RecordType = "changelog"
)

// Header is the embedded metadata of every persisted record. The first
// signature is the author; later entries are co-approvals.
type Header struct {
	Version         string             `json:"version"`
	Type            RecordType         `json:"type"`
	PayloadChecksum string             `json:"payloadChecksum"`
	Signatures      []crypto.Signature `json:"signatures"`
}

// Record is the on-disk envelope: {header, payload}. The payload is kept as
// raw JSON at this layer so that the canonical bytes hashed into
// payloadChecksum are exactly the bytes persisted and re-verified on read.
type Record struct {
	Header  Header          `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// ActorType distinguishes human operators from automated agents.
type ActorType string

const (
	ActorTypeHuman ActorType = "human"
	ActorTypeAgent ActorType = "agent"
)

// ActorStatus is the lifecycle state of an identity.
type ActorStatus string

const (
	ActorStatusActive  ActorStatus = "active"
	ActorStatusRevoked ActorStatus = "revoked"
)

// Actor is the trust-root payload: a signing identity with its public key
// and capability roles. Revoked actors may name a successor, forming the
// succession chain used to resolve authorship across key rotations.
type Actor struct {
	ID           string      `json:"id"`
	Type         ActorType   `json:"type"`
	DisplayName  string      `json:"displayName"`
	PublicKey    string      `json:"publicKey"`
	Roles        []string    `json:"roles"`
	Status       ActorStatus `json:"status"`
	SupersededBy string      `json:"supersededBy,omitempty"`
}

// Agent extends an agent-type Actor with engine and trigger configuration.
// The corresponding Actor record must exist with type=agent.
type Agent struct {
	ID                       string           `json:"id"`
	Engine                   map[string]any   `json:"engine"`
	Status                   string           `json:"status"`
	Triggers                 []map[string]any `json:"triggers,omitempty"`
	KnowledgeDependencies    []string         `json:"knowledge_dependencies,omitempty"`
	PromptEngineRequirements map[string]any   `json:"prompt_engine_requirements,omitempty"`
}

// TaskStatus is one state of the backlog task state machine.
type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "draft"
	TaskStatusReview    TaskStatus = "review"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusArchived  TaskStatus = "archived"
	TaskStatusDiscarded TaskStatus = "discarded"
)

// IsTerminal reports whether no further transition may leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusArchived || s == TaskStatusDiscarded
}

// Task priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Task is a unit of work tracked by the backlog adapter.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Status      TaskStatus     `json:"status"`
	Priority    string         `json:"priority"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	CycleIDs    []string       `json:"cycleIds"`
	Notes       string         `json:"notes,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CycleStatus is one state of the cycle lifecycle.
type CycleStatus string

const (
	CycleStatusPlanning  CycleStatus = "planning"
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusArchived  CycleStatus = "archived"
)

// IsTerminal reports whether the cycle may no longer be updated.
func (s CycleStatus) IsTerminal() bool {
	return s == CycleStatusCompleted || s == CycleStatusArchived
}

// Cycle groups tasks and optional child cycles into the project hierarchy.
// taskIds ⇄ Task.cycleIds is a bidirectional invariant owned by the backlog
// adapter.
type Cycle struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Status        CycleStatus    `json:"status"`
	TaskIDs       []string       `json:"taskIds"`
	ChildCycleIDs []string       `json:"childCycleIds,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// FeedbackEntityType names the kind of entity a feedback annotates.
type FeedbackEntityType string

const (
	EntityTask      FeedbackEntityType = "task"
	EntityCycle     FeedbackEntityType = "cycle"
	EntityExecution FeedbackEntityType = "execution"
	EntityChangelog FeedbackEntityType = "changelog"
	EntityFeedback  FeedbackEntityType = "feedback"
)

// FeedbackType classifies a feedback record.
type FeedbackType string

const (
	FeedbackBlocking      FeedbackType = "blocking"
	FeedbackSuggestion    FeedbackType = "suggestion"
	FeedbackQuestion      FeedbackType = "question"
	FeedbackApproval      FeedbackType = "approval"
	FeedbackClarification FeedbackType = "clarification"
	FeedbackAssignment    FeedbackType = "assignment"
)

// FeedbackStatus is the state a feedback record was created in. Feedback is
// immutable; resolution is expressed by a later record pointing back via
// resolvesFeedbackId.
type FeedbackStatus string

const (
	FeedbackOpen         FeedbackStatus = "open"
	FeedbackAcknowledged FeedbackStatus = "acknowledged"
	FeedbackResolved     FeedbackStatus = "resolved"
	FeedbackWontfix      FeedbackStatus = "wontfix"
)

// Feedback is an immutable annotation on any entity.
type Feedback struct {
	ID                 string             `json:"id"`
	EntityType         FeedbackEntityType `json:"entityType"`
	EntityID           string             `json:"entityId"`
	Type               FeedbackType       `json:"type"`
	Status             FeedbackStatus     `json:"status"`
	Content            string             `json:"content"`
	Assignee           string             `json:"assignee,omitempty"`
	ResolvesFeedbackID string             `json:"resolvesFeedbackId,omitempty"`
	Priority           string             `json:"priority,omitempty"`
	Tags               []string           `json:"tags,omitempty"`
}

// Execution is one append-only log entry recording work done on a task.
type Execution struct {
	ID         string   `json:"id"`
	TaskID     string   `json:"taskId"`
	Result     string   `json:"result"`
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Notes      string   `json:"notes,omitempty"`
	References []string `json:"references,omitempty"`
}

// ExecutionTypeProgress is the default execution type.
const ExecutionTypeProgress = "progress"

// Changelog aggregates completed tasks into a deliverable or release.
type Changelog struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	RelatedTasks      []string `json:"relatedTasks"`
	CompletedAt       int64    `json:"completedAt"`
	RelatedCycles     []string `json:"relatedCycles,omitempty"`
	RelatedExecutions []string `json:"relatedExecutions,omitempty"`
	Version           string   `json:"version,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Commits           []string `json:"commits,omitempty"`
	Files             []string `json:"files,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}
