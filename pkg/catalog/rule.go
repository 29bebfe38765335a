package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule is a declarative activation predicate over Intake fields.
//
// Exactly one form is used per node:
//   - leaf: Field + Op + Value/Values
//   - combinators: All (and), Any (or), Not
//
// Rules are data, interpreted by Evaluate; they are never executed as code.
type Rule struct {
	Field  Field    `json:"field,omitempty" yaml:"field,omitempty"`
	Op     Operator `json:"op,omitempty" yaml:"op,omitempty"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`

	All []Rule `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Rule `json:"any,omitempty" yaml:"any,omitempty"`
	Not *Rule  `json:"not,omitempty" yaml:"not,omitempty"`
}

// Field names an Intake field a rule can test.
type Field string

const (
	FieldTypology    Field = "typology"
	FieldSubtype     Field = "subtype"
	FieldTier        Field = "tier"
	FieldArea        Field = "area"
	FieldBudgetBand  Field = "budget_band"
	FieldPriorities  Field = "priorities"
	FieldDisciplines Field = "disciplines"
	FieldComplexity  Field = "complexity"
	FieldPorte       Field = "porte"
)

// Operator is a comparison applied by a leaf rule.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains" // list fields: any element equals Value
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpExists   Operator = "exists" // field is non-empty / non-zero
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindList
)

func (f Field) kind() (fieldKind, error) {
	switch f {
	case FieldTypology, FieldSubtype, FieldTier, FieldBudgetBand, FieldComplexity, FieldPorte:
		return kindString, nil
	case FieldArea:
		return kindNumber, nil
	case FieldPriorities, FieldDisciplines:
		return kindList, nil
	default:
		return 0, fmt.Errorf("unknown field: %q", f)
	}
}

func (r *Rule) isLeaf() bool {
	return r.Field != "" || r.Op != ""
}

// Validate checks that the rule is well formed: exactly one form per node, known
// fields, and operators that make sense for the field kind.
func (r *Rule) Validate() error {
	forms := 0
	if r.isLeaf() {
		forms++
	}
	if len(r.All) > 0 {
		forms++
	}
	if len(r.Any) > 0 {
		forms++
	}
	if r.Not != nil {
		forms++
	}
	if forms != 1 {
		return fmt.Errorf("rule must have exactly one of field/op, all, any, not (got %d)", forms)
	}

	switch {
	case len(r.All) > 0:
		for i := range r.All {
			if err := r.All[i].Validate(); err != nil {
				return fmt.Errorf("all[%d]: %w", i, err)
			}
		}
		return nil
	case len(r.Any) > 0:
		for i := range r.Any {
			if err := r.Any[i].Validate(); err != nil {
				return fmt.Errorf("any[%d]: %w", i, err)
			}
		}
		return nil
	case r.Not != nil:
		if err := r.Not.Validate(); err != nil {
			return fmt.Errorf("not: %w", err)
		}
		return nil
	}

	kind, err := r.Field.kind()
	if err != nil {
		return err
	}

	switch r.Op {
	case OpEq, OpNe:
		if kind == kindList {
			return fmt.Errorf("operator %s not supported on list field %s (use contains)", r.Op, r.Field)
		}
		if kind == kindNumber {
			if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
				return fmt.Errorf("field %s: value %q is not a number", r.Field, r.Value)
			}
		}
	case OpIn, OpNotIn:
		if kind != kindString {
			return fmt.Errorf("operator %s requires a string field, got %s", r.Op, r.Field)
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("operator %s requires values", r.Op)
		}
	case OpContains:
		if kind != kindList {
			return fmt.Errorf("operator contains requires a list field, got %s", r.Field)
		}
	case OpGt, OpGte, OpLt, OpLte:
		if kind != kindNumber {
			return fmt.Errorf("operator %s requires a numeric field, got %s", r.Op, r.Field)
		}
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("field %s: value %q is not a number", r.Field, r.Value)
		}
	case OpExists:
	default:
		return fmt.Errorf("unknown operator: %q", r.Op)
	}

	return nil
}

// Evaluate interprets the rule against in. A nil rule is always true.
// Malformed rules evaluate to false; call Validate when loading a catalog to
// reject them up front.
func (r *Rule) Evaluate(in *Intake) bool {
	if r == nil {
		return true
	}

	switch {
	case len(r.All) > 0:
		for i := range r.All {
			if !r.All[i].Evaluate(in) {
				return false
			}
		}
		return true
	case len(r.Any) > 0:
		for i := range r.Any {
			if r.Any[i].Evaluate(in) {
				return true
			}
		}
		return false
	case r.Not != nil:
		return !r.Not.Evaluate(in)
	}

	kind, err := r.Field.kind()
	if err != nil {
		return false
	}

	switch kind {
	case kindString:
		return r.evalString(stringField(in, r.Field))
	case kindNumber:
		return r.evalNumber(in.Area)
	case kindList:
		return r.evalList(listField(in, r.Field))
	}
	return false
}

func (r *Rule) evalString(got string) bool {
	switch r.Op {
	case OpEq:
		return strings.EqualFold(got, r.Value)
	case OpNe:
		return !strings.EqualFold(got, r.Value)
	case OpIn:
		return containsFold(r.Values, got)
	case OpNotIn:
		return !containsFold(r.Values, got)
	case OpExists:
		return got != ""
	default:
		return false
	}
}

func (r *Rule) evalNumber(got float64) bool {
	if r.Op == OpExists {
		return got != 0
	}
	want, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return false
	}
	switch r.Op {
	case OpEq:
		return got == want
	case OpNe:
		return got != want
	case OpGt:
		return got > want
	case OpGte:
		return got >= want
	case OpLt:
		return got < want
	case OpLte:
		return got <= want
	default:
		return false
	}
}

func (r *Rule) evalList(got []string) bool {
	switch r.Op {
	case OpContains:
		return containsFold(got, r.Value)
	case OpExists:
		return len(got) > 0
	default:
		return false
	}
}

func stringField(in *Intake, f Field) string {
	switch f {
	case FieldTypology:
		return in.Typology
	case FieldSubtype:
		return in.Subtype
	case FieldTier:
		return in.Tier
	case FieldBudgetBand:
		return in.BudgetBand
	case FieldComplexity:
		return string(in.Complexity.Normalize())
	case FieldPorte:
		return string(in.Porte.Normalize())
	default:
		return ""
	}
}

func listField(in *Intake, f Field) []string {
	switch f {
	case FieldPriorities:
		return in.Priorities
	case FieldDisciplines:
		return in.Disciplines
	default:
		return nil
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
