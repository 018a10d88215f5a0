package backlog

import (
	"fmt"

	"github.com/gitgov-io/gitgov/pkg/records"
)

// ProtocolViolationError reports a task or cycle transition the methodology
// forbids, including any write against a terminal record.
type ProtocolViolationError struct {
	EntityID string
	From     string
	To       string
	Reason   string
}

func (e *ProtocolViolationError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("ProtocolViolationError: %s may not transition %s -> %s: %s",
			e.EntityID, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("ProtocolViolationError: %s (%s): %s", e.EntityID, e.From, e.Reason)
}

// BlockingFeedbackError rejects a non-forced resume while blocking feedback
// remains open on the task.
type BlockingFeedbackError struct {
	TaskID string
	Count  int
}

func (e *BlockingFeedbackError) Error() string {
	return fmt.Sprintf("BlockingFeedbackError: task %s has %d open blocking feedback(s); resume requires force",
		e.TaskID, e.Count)
}

// AtomicOperationError reports a multi-record operation that could not
// commit. RolledBack is false only when undoing the partial writes also
// failed, leaving the store inconsistent.
type AtomicOperationError struct {
	Op         string
	Reason     string
	RolledBack bool
}

func (e *AtomicOperationError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "NOT rolled back"
	}
	return fmt.Sprintf("AtomicOperationError: %s failed (%s): %s", e.Op, state, e.Reason)
}

// NotImplementedError marks an operation reserved by the protocol surface
// but not yet built.
type NotImplementedError struct {
	Op string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("NotImplementedError: %s", e.Op)
}

func violation(id string, from, to records.TaskStatus, reason string) *ProtocolViolationError {
	return &ProtocolViolationError{EntityID: id, From: string(from), To: string(to), Reason: reason}
}
