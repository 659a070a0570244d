package types

import "confhub/internal/value"

// Operator names a condition operator
type Operator string

const (
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "not_equals"
	OperatorIn                 Operator = "in"
	OperatorNotIn              Operator = "not_in"
	OperatorLessThan           Operator = "less_than"
	OperatorLessThanOrEqual    Operator = "less_than_or_equal"
	OperatorGreaterThan        Operator = "greater_than"
	OperatorGreaterThanOrEqual Operator = "greater_than_or_equal"
	OperatorContains           Operator = "contains"
	OperatorStartsWith         Operator = "starts_with"
	OperatorEndsWith           Operator = "ends_with"
	OperatorMatches            Operator = "matches"
	OperatorSegmentation       Operator = "segmentation"

	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
	OperatorNot Operator = "not"
)

// IsComposite reports whether the operator combines nested conditions
func (o Operator) IsComposite() bool {
	return o == OperatorAnd || o == OperatorOr || o == OperatorNot
}

// ConditionValueType tells how a condition's comparison value is obtained
type ConditionValueType string

const (
	ConditionValueLiteral   ConditionValueType = "literal"
	ConditionValueReference ConditionValueType = "reference"
)

// ConditionValue is the comparison value of a condition: either a literal
// or a reference to a path inside another config's value.
type ConditionValue struct {
	Type       ConditionValueType `json:"type"`
	Value      value.Value        `json:"value,omitempty"`
	ConfigName string             `json:"config_name,omitempty"`
	Path       []string           `json:"path,omitempty"`

	// Unresolved is set when a reference could not be resolved; such a
	// condition never matches.
	Unresolved bool `json:"-"`
}

// Literal returns a literal condition value
func Literal(v value.Value) ConditionValue {
	return ConditionValue{Type: ConditionValueLiteral, Value: v}
}

// Condition is a single predicate over the request context. Composite
// operators (and, or, not) use Conditions instead of Property/Value.
type Condition struct {
	Operator   Operator       `json:"operator"`
	Property   string         `json:"property,omitempty"`
	Value      ConditionValue `json:"value"`
	Seed       string         `json:"seed,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty"`
}

// Override is a named rule returning Value when all conditions match
type Override struct {
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	Value      value.Value `json:"value"`
}
