package override

import (
	"errors"

	"confhub/internal/types"
	"confhub/internal/value"
)

// Validate checks that overrides are well formed for the default evaluator
func Validate(overrides []types.Override) error {
	return defaultEvaluator.Validate(overrides)
}

// Validate checks that overrides only use known operators with usable values
func (e *Evaluator) Validate(overrides []types.Override) error {
	for i, o := range overrides {
		for _, c := range o.Conditions {
			if err := e.validateCondition(c); err != nil {
				return types.BadRequest("override %d (%q): %s", i, o.Name, err.Error())
			}
		}
	}
	return nil
}

func (e *Evaluator) validateCondition(c types.Condition) error {
	if c.Operator.IsComposite() {
		if len(c.Conditions) == 0 {
			return errors.New("operator " + string(c.Operator) + " requires nested conditions")
		}
		for _, nested := range c.Conditions {
			if err := e.validateCondition(nested); err != nil {
				return err
			}
		}
		return nil
	}

	if !e.Has(c.Operator) {
		return errors.New("unknown operator " + string(c.Operator))
	}
	if c.Property == "" {
		return errors.New("operator " + string(c.Operator) + " requires a property")
	}

	switch c.Value.Type {
	case types.ConditionValueReference:
		if c.Value.ConfigName == "" {
			return errors.New("reference value requires a config name")
		}
		// Reference values are only known at evaluation time.
		return nil
	case "", types.ConditionValueLiteral:
	default:
		return errors.New("unknown value type " + string(c.Value.Type))
	}

	v := c.Value.Value
	switch c.Operator {
	case types.OperatorIn, types.OperatorNotIn:
		if v.Kind() != value.KindArray {
			return errors.New("operator " + string(c.Operator) + " requires an array value")
		}
	case types.OperatorMatches:
		s, ok := v.AsString()
		if !ok {
			return errors.New("operator matches requires a string pattern")
		}
		if _, err := compilePattern(s); err != nil {
			return errors.New("invalid pattern: " + err.Error())
		}
	case types.OperatorSegmentation:
		if _, _, ok := SegmentRange(v); !ok {
			return errors.New("segmentation requires {\"from\", \"to\"} within 0..100")
		}
	}
	return nil
}
