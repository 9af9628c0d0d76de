package hcl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/recipegrid/internal/variant"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Converter is the HCL-specific implementation of the config.Converter
// interface. Expressions see the variant axes as the variables python,
// py_nodot, build_type, mpi_type and toolkit.
type Converter struct {
	functions map[string]function.Function
}

// NewConverter creates a new HCL expression converter.
func NewConverter() *Converter {
	return &Converter{
		functions: map[string]function.Function{
			"concat":  stdlib.ConcatFunc,
			"join":    stdlib.JoinFunc,
			"lower":   stdlib.LowerFunc,
			"replace": stdlib.ReplaceFunc,
			"upper":   stdlib.UpperFunc,
		},
	}
}

func (c *Converter) evalContext(v variant.Variant) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"python":     cty.StringVal(v.Python),
			"py_nodot":   cty.StringVal(v.PyNoDot()),
			"build_type": cty.StringVal(v.BuildType),
			"mpi_type":   cty.StringVal(v.MPIType),
			"toolkit":    cty.StringVal(v.Toolkit),
		},
		Functions: c.functions,
	}
}

func (c *Converter) eval(expr hcl.Expression, v variant.Variant) (cty.Value, error) {
	if expr == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	val, diags := expr.Value(c.evalContext(v))
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	if !val.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("%s: expression value is not known", expr.Range())
	}
	return val, nil
}

// EvalBool implements config.Converter.
func (c *Converter) EvalBool(expr hcl.Expression, v variant.Variant) (bool, error) {
	val, err := c.eval(expr, v)
	if err != nil {
		return false, err
	}
	if val.IsNull() {
		return true, nil
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%s: expected a bool: %w", expr.Range(), err)
	}
	return b.True(), nil
}

// EvalString implements config.Converter.
func (c *Converter) EvalString(expr hcl.Expression, v variant.Variant) (string, error) {
	val, err := c.eval(expr, v)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s: expected a string: %w", expr.Range(), err)
	}
	return strings.TrimSpace(s.AsString()), nil
}

// EvalStringList implements config.Converter.
func (c *Converter) EvalStringList(expr hcl.Expression, v variant.Variant) ([]string, error) {
	val, err := c.eval(expr, v)
	if err != nil {
		return nil, err
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("%s: expected a list of strings, got %s", expr.Range(), ty.FriendlyName())
	}

	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.IsNull() {
			continue
		}
		s, err := convert.Convert(elem, cty.String)
		if err != nil {
			return nil, fmt.Errorf("%s: expected a list of strings: %w", expr.Range(), err)
		}
		if str := strings.TrimSpace(s.AsString()); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}
