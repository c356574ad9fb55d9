package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownVariable      = errors.New("unknown variable")
	ErrUnknownValue         = errors.New("value not in domain")
	ErrDuplicateVariable    = errors.New("variable already declared")
	ErrDuplicateValue       = errors.New("duplicate value in domain")
	ErrEmptyDomain          = errors.New("empty domain")
	ErrCycle                = errors.New("cycle in network structure")
	ErrValidation           = errors.New("model validation failed")
	ErrInconsistentEvidence = errors.New("evidence has zero probability")
	ErrInvalidQuery         = errors.New("invalid query")
)

// UnknownVariableError reports a name that was never declared in the Registry.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

func (e *UnknownVariableError) Unwrap() error { return ErrUnknownVariable }

// UnknownValueError reports a value outside a variable's domain.
type UnknownValueError struct {
	Variable string
	Value    string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("value %q not in domain of %q", e.Value, e.Variable)
}

func (e *UnknownValueError) Unwrap() error { return ErrUnknownValue }

// CycleError is returned when an edge would close a directed cycle.
type CycleError struct {
	Parent string
	Child  string
	Path   []string
}

func (e *CycleError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("edge %s -> %s creates cycle: %s", e.Parent, e.Child, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("edge %s -> %s creates cycle", e.Parent, e.Child)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

type ViolationKind string

const (
	ViolationMissingCPD   ViolationKind = "missing_cpd"
	ViolationOrphanCPD    ViolationKind = "orphan_cpd"
	ViolationDuplicateCPD ViolationKind = "duplicate_cpd"
	ViolationParents      ViolationKind = "parent_mismatch"
	ViolationDomain       ViolationKind = "domain_mismatch"
	ViolationShape        ViolationKind = "shape"
	ViolationRowSum       ViolationKind = "row_sum"
	ViolationOutOfRange   ViolationKind = "out_of_range"
)

// ValidationError is a single consistency violation found by Check.
type ValidationError struct {
	Kind        ViolationKind
	Node        string
	Combination map[string]string
	Detail      string
}

func (e ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: node %q", e.Kind, e.Node)
	if len(e.Combination) > 0 {
		fmt.Fprintf(&b, " at %s", FormatAssignment(e.Combination))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// ValidationErrors collects every violation found in a model.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d violation(s): %s", len(errs), strings.Join(msgs, "; "))
}

func (errs ValidationErrors) Unwrap() error { return ErrValidation }

// InsufficientDataWarning marks a CPD row filled without observations.
type InsufficientDataWarning struct {
	Node        string
	Combination map[string]string
}

func (w InsufficientDataWarning) String() string {
	return fmt.Sprintf("no observations for %q at %s", w.Node, FormatAssignment(w.Combination))
}

// InconsistentEvidenceError is returned when evidence has zero prior probability.
type InconsistentEvidenceError struct {
	Evidence map[string]string
	Node     string
}

func (e *InconsistentEvidenceError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("evidence %s has zero probability under CPD of %q", FormatAssignment(e.Evidence), e.Node)
	}
	return fmt.Sprintf("evidence %s has zero probability", FormatAssignment(e.Evidence))
}

func (e *InconsistentEvidenceError) Unwrap() error { return ErrInconsistentEvidence }
