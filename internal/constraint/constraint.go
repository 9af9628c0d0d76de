// Package constraint normalizes conda-style dependency constraint strings
// ("name [operator]version[ build-string]") into the canonical form written
// to environment descriptor files.
//
// Normalization is lenient: strings that do not fit the grammar are returned
// with only their whitespace collapsed. Lint reports those cases so callers
// can surface them without rejecting the input.
package constraint

import (
	"regexp"
	"strings"
)

// Wildcard is appended to bare numeric versions so that any build of the
// version matches.
const Wildcard = ".*"

const operatorChars = "=<>!~"

var (
	whitespace    = regexp.MustCompile(`\s+`)
	numericDotted = regexp.MustCompile(`^\d+(\.\d+)*$`)
	wildcarded    = regexp.MustCompile(`^\d+(\.\d+)*\.\*$`)
)

// operators are matched longest first.
var operators = []string{"==", ">=", "<=", "!=", "~=", ">", "<"}

// parsed is a constraint split into its grammar parts. When passthrough is
// set the remaining fields are only partially populated and the collapsed
// input must be emitted unchanged.
type parsed struct {
	collapsed   string
	name        string
	attached    bool
	op          string
	body        string
	build       string
	pin         bool
	passthrough bool
	extra       bool
}

func collapse(raw string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(raw, " "))
}

func parse(raw string) parsed {
	p := parsed{collapsed: collapse(raw)}
	s := p.collapsed
	if s == "" {
		p.passthrough = true
		return p
	}

	i := strings.IndexAny(s, " "+operatorChars)
	if i < 0 {
		p.name = s
		return p
	}
	if i == 0 {
		p.passthrough = true
		return p
	}
	p.name = s[:i]
	rest := s[i:]
	p.attached = rest[0] != ' '
	rest = strings.TrimLeft(rest, " ")

	if rest[0] == '=' && !strings.HasPrefix(rest, "==") {
		p.pin = true
		p.passthrough = true
		return p
	}

	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			p.op = op
			rest = strings.TrimLeft(rest[len(op):], " ")
			break
		}
	}
	if rest == "" || strings.ContainsAny(rest[:1], operatorChars) {
		p.passthrough = true
		return p
	}

	tokens := strings.SplitN(rest, " ", 2)
	p.body = tokens[0]
	if len(tokens) == 2 {
		p.build = tokens[1]
		p.extra = strings.Contains(p.build, " ")
	}
	if strings.Contains(p.body, "=") {
		p.pin = true
	}
	return p
}

func (p parsed) String() string {
	if p.passthrough {
		return p.collapsed
	}
	if p.op == "" && p.body == "" {
		return p.name
	}
	var b strings.Builder
	b.WriteString(p.name)
	if !p.attached {
		b.WriteByte(' ')
	}
	b.WriteString(p.op)
	b.WriteString(p.body)
	if p.build != "" {
		b.WriteByte(' ')
		b.WriteString(p.build)
	}
	return b.String()
}

// widens reports whether the version body gets a wildcard appended.
func (p parsed) widens() bool {
	if p.passthrough || p.pin {
		return false
	}
	if p.op != "" && p.op != "==" {
		return false
	}
	return numericDotted.MatchString(p.body)
}

// Normalize returns the canonical form of a constraint string. It never
// fails: input it cannot interpret is returned with whitespace collapsed.
//
//	Normalize("pack1    1.0")      == "pack1 1.0.*"
//	Normalize("pack1==1.0")        == "pack1==1.0.*"
//	Normalize("pack2 >=2.0")       == "pack2 >=2.0"
//	Normalize("pack3 3.3 build")   == "pack3 3.3.* build"
//	Normalize("pack4=1.15.0=py38") == "pack4=1.15.0=py38"
func Normalize(raw string) string {
	p := parse(raw)
	if p.widens() {
		p.body += Wildcard
	}
	return p.String()
}

// Name returns the package name a constraint refers to.
func Name(raw string) string {
	s := collapse(raw)
	if i := strings.IndexAny(s, " "+operatorChars); i >= 0 {
		return s[:i]
	}
	return s
}

// Version returns the version a constraint selects, without any trailing
// wildcard, and whether it selects a single version (bare, "==" or an exact
// pin) rather than a range.
func Version(raw string) (string, bool) {
	p := parse(raw)
	if p.pin {
		rest := strings.TrimLeft(p.collapsed[len(p.name):], " =")
		return strings.TrimSuffix(strings.SplitN(rest, "=", 2)[0], Wildcard), true
	}
	if p.passthrough || p.body == "" || (p.op != "" && p.op != "==") {
		return "", false
	}
	return strings.TrimSuffix(p.body, Wildcard), true
}

// Compatible reports whether two versions returned by Version can select the
// same build, that is when one is equal to or a dotted prefix of the other.
func Compatible(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
