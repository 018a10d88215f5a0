// Package workflow is the methodology rules engine: a pure lookup over
// configuration deciding which task transitions are legal and which actor
// capabilities authorize them. The backlog adapter consults it before every
// status change; a nil rule means "reject".
package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/records"
)

//go:embed default_methodology.yaml
var defaultMethodologyYAML []byte

// ApprovalRule requires a minimum number of co-signatures of a given role.
type ApprovalRule struct {
	Role  string `yaml:"role" json:"role"`
	Count int    `yaml:"count" json:"count"`
}

// Conditions gate one transition: an optional command label, an any-of set
// of capability roles, and an optional approval quorum.
type Conditions struct {
	Command      string        `yaml:"command" json:"command,omitempty"`
	Requires     []string      `yaml:"requires" json:"requires,omitempty"`
	MinApprovals *ApprovalRule `yaml:"minApprovals" json:"minApprovals,omitempty"`
}

// Rule is one legal transition of the task state machine.
type Rule struct {
	From       records.TaskStatus `yaml:"from" json:"from"`
	To         records.TaskStatus `yaml:"to" json:"to"`
	Conditions Conditions         `yaml:"conditions" json:"conditions"`
}

// TransitionContext describes who (or what) is requesting a transition.
// System is set for bus-driven transitions (first execution, blocking
// feedback, changelog archive, auto-resume), which bypass the role check.
type TransitionContext struct {
	Command    string
	ActorRoles []string
	System     bool
}

// Methodology decides transition legality and signature requirements.
type Methodology interface {
	GetTransitionRule(from, to records.TaskStatus, tctx TransitionContext) *Rule
	ValidateSignature(sig crypto.Signature, from, to records.TaskStatus) bool
	GetAvailableTransitions(from records.TaskStatus) []Rule
}

// RuleSet is a Methodology backed by a loaded rule table.
type RuleSet struct {
	Name        string `yaml:"name"`
	Transitions []Rule `yaml:"transitions"`
}

// Default returns the embedded default methodology.
func Default() *RuleSet {
	rs, err := Parse(defaultMethodologyYAML)
	if err != nil {
		panic(fmt.Sprintf("workflow: embedded methodology is invalid: %v", err))
	}
	return rs
}

// LoadFile reads a methodology rule file.
func LoadFile(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a methodology document.
func Parse(raw []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parsing methodology: %w", err)
	}
	for i, r := range rs.Transitions {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("methodology transition %d: from and to are required", i)
		}
	}
	return &rs, nil
}

func (rs *RuleSet) find(from, to records.TaskStatus) *Rule {
	for i := range rs.Transitions {
		if rs.Transitions[i].From == from && rs.Transitions[i].To == to {
			return &rs.Transitions[i]
		}
	}
	return nil
}

// GetTransitionRule returns the rule authorizing from→to under tctx, or nil
// when the transition is illegal or the context lacks the required
// capability. The "admin" role satisfies any capability requirement.
func (rs *RuleSet) GetTransitionRule(from, to records.TaskStatus, tctx TransitionContext) *Rule {
	rule := rs.find(from, to)
	if rule == nil {
		return nil
	}
	if tctx.System {
		return rule
	}
	if rule.Conditions.Command != "" && tctx.Command != "" && rule.Conditions.Command != tctx.Command {
		return nil
	}
	if len(rule.Conditions.Requires) == 0 {
		return rule
	}
	if slices.Contains(tctx.ActorRoles, "admin") {
		return rule
	}
	for _, role := range tctx.ActorRoles {
		if slices.Contains(rule.Conditions.Requires, role) {
			return rule
		}
	}
	return nil
}

// ValidateSignature reports whether sig's role satisfies the capability
// requirement of the from→to rule. Unknown transitions validate nothing.
func (rs *RuleSet) ValidateSignature(sig crypto.Signature, from, to records.TaskStatus) bool {
	rule := rs.find(from, to)
	if rule == nil {
		return false
	}
	if len(rule.Conditions.Requires) == 0 {
		return true
	}
	return sig.Role == "admin" || sig.Role == "system" || slices.Contains(rule.Conditions.Requires, sig.Role)
}

// GetAvailableTransitions lists every rule leaving from.
func (rs *RuleSet) GetAvailableTransitions(from records.TaskStatus) []Rule {
	var out []Rule
	for _, r := range rs.Transitions {
		if r.From == from {
			out = append(out, r)
		}
	}
	return out
}
