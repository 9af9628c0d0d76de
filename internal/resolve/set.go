package resolve

import (
	"slices"
	"strings"

	"github.com/vk/recipegrid/internal/constraint"
)

// Set is a set of normalized constraint strings.
type Set map[string]struct{}

// NewSet returns a set holding the given constraints as written.
func NewSet(constraints ...string) Set {
	s := make(Set, len(constraints))
	for _, c := range constraints {
		s.Add(c)
	}
	return s
}

// Add inserts c. Empty strings are ignored.
func (s Set) Add(c string) {
	if c != "" {
		s[c] = struct{}{}
	}
}

// Contains reports whether c is in the set.
func (s Set) Contains(c string) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the constraints in lexical order, the order they are
// written to environment files in.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Conflict is a package that more than one constraint in a set pins to
// versions that cannot both be satisfied.
type Conflict struct {
	Name        string
	Constraints []string
}

// Conflicts returns the packages pinned to incompatible versions, sorted by
// name. Ranges are never reported, and a version is compatible with any
// dotted extension of it, so "numpy 1.19.*" and "numpy 1.19.2.* py38" do not
// conflict.
func (s Set) Conflicts() []Conflict {
	pinned := make(map[string][]string)
	for _, c := range s.Sorted() {
		if _, exact := constraint.Version(c); exact {
			name := constraint.Name(c)
			pinned[name] = append(pinned[name], c)
		}
	}

	var out []Conflict
	for name, cs := range pinned {
		if conflicting(cs) {
			out = append(out, Conflict{Name: name, Constraints: cs})
		}
	}
	slices.SortFunc(out, func(a, b Conflict) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func conflicting(cs []string) bool {
	for i := range cs {
		vi, _ := constraint.Version(cs[i])
		for j := i + 1; j < len(cs); j++ {
			vj, _ := constraint.Version(cs[j])
			if !constraint.Compatible(vi, vj) {
				return true
			}
		}
	}
	return false
}
