package records

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemas = map[RecordType]*jsonschema.Schema{}

func init() {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	for rtype, file := range map[RecordType]string{
		RecordTypeActor:     "schemas/actor.json",
		RecordTypeAgent:     "schemas/agent.json",
		RecordTypeTask:      "schemas/task.json",
		RecordTypeCycle:     "schemas/cycle.json",
		RecordTypeFeedback:  "schemas/feedback.json",
		RecordTypeExecution: "schemas/execution.json",
		RecordTypeChangelog: "schemas/changelog.json",
	} {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			panic(fmt.Sprintf("records: missing embedded schema %s: %v", file, err))
		}
		url := "https://gitgov.io/schemas/" + string(rtype) + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("records: bad embedded schema %s: %v", file, err))
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("records: schema compile %s: %v", file, err))
		}
		schemas[rtype] = sch
	}
}

// ValidationError is one (field, message, value) triple from a detailed
// validation run.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult is the outcome of a detailed validation.
type ValidationResult struct {
	IsValid bool              `json:"isValid"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

func (r *ValidationResult) add(field, message string, value any) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

// DetailedValidationError is the tagged error raised when a record fails
// validation. It carries the full error list so callers can report every
// offending field at once.
type DetailedValidationError struct {
	RecordType RecordType
	RecordID   string
	Errors     []ValidationError
}

func (e *DetailedValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return fmt.Sprintf("DetailedValidationError: invalid %s record %q: %s",
		e.RecordType, e.RecordID, strings.Join(parts, "; "))
}

// AsError converts a failed result into a DetailedValidationError, or nil
// when the result is valid.
func (r ValidationResult) AsError(rtype RecordType, id string) error {
	if r.IsValid {
		return nil
	}
	return &DetailedValidationError{RecordType: rtype, RecordID: id, Errors: r.Errors}
}

// ValidatePayload runs the JSON-Schema validation for a record kind over a
// raw payload. This is the entry point the store uses on read; the typed
// Validate*Detailed functions below are what factories use on output.
func ValidatePayload(rtype RecordType, payload json.RawMessage) ValidationResult {
	sch, ok := schemas[rtype]
	if !ok {
		res := ValidationResult{}
		res.add("header.type", "unknown record type", string(rtype))
		return res
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		res := ValidationResult{}
		res.add("payload", "payload is not valid JSON: "+err.Error(), nil)
		return res
	}
	res := ValidationResult{IsValid: true}
	if err := sch.Validate(decoded); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			for _, be := range verr.BasicOutput().Errors {
				// BasicOutput includes branch summaries ("doesn't validate
				// with ..."); keep only the leaf diagnostics.
				if be.Error == "" || strings.Contains(be.Error, "doesn't validate with") {
					continue
				}
				res.add(instanceField(be.InstanceLocation), be.Error, nil)
			}
			if res.IsValid {
				res.add(instanceField(verr.InstanceLocation), verr.Message, nil)
			}
		} else {
			res.add("payload", err.Error(), nil)
		}
	}
	return res
}

// instanceField converts a JSON-pointer instance location ("/cycleIds/0")
// into the dotted field path used in error triples ("cycleIds.0").
func instanceField(loc string) string {
	if loc == "" || loc == "/" {
		return "payload"
	}
	return strings.ReplaceAll(strings.TrimPrefix(loc, "/"), "/", ".")
}

func validateTyped(rtype RecordType, v any) ValidationResult {
	raw, err := json.Marshal(v)
	if err != nil {
		res := ValidationResult{}
		res.add("payload", "marshal failed: "+err.Error(), nil)
		return res
	}
	return ValidatePayload(rtype, raw)
}

// ValidateActorDetailed re-checks the full Actor invariant set.
func ValidateActorDetailed(a *Actor) ValidationResult {
	res := validateTyped(RecordTypeActor, a)
	if a.SupersededBy != "" && a.Status != ActorStatusRevoked {
		res.add("supersededBy", "only revoked actors may name a successor", a.SupersededBy)
	}
	return res
}

// ValidateAgentDetailed re-checks the full Agent invariant set. The
// requirement that a matching agent-type Actor exists is a cross-record
// check owned by the identity adapter.
func ValidateAgentDetailed(a *Agent) ValidationResult {
	return validateTyped(RecordTypeAgent, a)
}

// ValidateTaskDetailed re-checks the full Task invariant set.
func ValidateTaskDetailed(t *Task) ValidationResult {
	return validateTyped(RecordTypeTask, t)
}

// ValidateCycleDetailed re-checks the full Cycle invariant set.
func ValidateCycleDetailed(c *Cycle) ValidationResult {
	return validateTyped(RecordTypeCycle, c)
}

// ValidateFeedbackDetailed re-checks the full Feedback invariant set.
func ValidateFeedbackDetailed(f *Feedback) ValidationResult {
	res := validateTyped(RecordTypeFeedback, f)
	if f.EntityType == EntityFeedback && f.ResolvesFeedbackID != "" && f.ResolvesFeedbackID != f.EntityID {
		res.add("resolvesFeedbackId", "resolution must point at the feedback named by entityId", f.ResolvesFeedbackID)
	}
	return res
}

// ValidateExecutionDetailed re-checks the full Execution invariant set.
func ValidateExecutionDetailed(e *Execution) ValidationResult {
	return validateTyped(RecordTypeExecution, e)
}

// ValidateChangelogDetailed re-checks the full Changelog invariant set.
// Referenced-task existence is a cross-record check owned by the changelog
// adapter.
func ValidateChangelogDetailed(c *Changelog) ValidationResult {
	return validateTyped(RecordTypeChangelog, c)
}
