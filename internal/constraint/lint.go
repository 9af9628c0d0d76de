package constraint

import (
	"fmt"
	"strings"
)

// Warning describes a constraint that Normalize accepted but could not
// interpret fully.
type Warning struct {
	Constraint string
	Message    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%q: %s", w.Constraint, w.Message)
}

// Lint inspects a constraint string and returns the soft problems found in
// it. An empty result means the constraint parsed cleanly. Lint does not
// affect what Normalize returns.
func Lint(raw string) []Warning {
	p := parse(raw)
	warn := func(format string, args ...any) Warning {
		return Warning{Constraint: raw, Message: fmt.Sprintf(format, args...)}
	}

	var out []Warning
	switch {
	case p.collapsed == "":
		return []Warning{warn("empty constraint")}
	case p.name == "":
		return []Warning{warn("missing package name")}
	case p.pin:
		if rest := strings.TrimLeft(p.collapsed[len(p.name):], " "); len(rest) > 1 && strings.ContainsAny(rest[1:2], operatorChars) {
			out = append(out, warn("unknown operator %q", rest[:2]))
		}
		return out
	case p.passthrough:
		return []Warning{warn("operator without a version")}
	}

	if p.body == "" {
		return nil
	}
	if p.extra {
		out = append(out, warn("unexpected tokens after build string %q", p.build))
	}
	if (p.op == "" || p.op == "==") && !numericDotted.MatchString(p.body) && !wildcarded.MatchString(p.body) {
		out = append(out, warn("version %q is not numeric and will not be widened", p.body))
	}
	return out
}
