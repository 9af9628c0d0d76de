// Package variant models the build matrix axes: interpreter version,
// hardware build type, MPI implementation and CUDA toolkit version.
package variant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build types understood by the graph builder.
const (
	BuildTypeCPU  = "cpu"
	BuildTypeCUDA = "cuda"
)

// Defaults applied when a run does not request specific axes.
var (
	DefaultPythonVersions  = []string{"3.8"}
	DefaultBuildTypes      = []string{BuildTypeCPU, BuildTypeCUDA}
	DefaultMPITypes        = []string{"openmpi"}
	DefaultToolkitVersions = []string{"11.2"}
)

// Variant is one point of the build matrix. An empty axis means the build
// does not depend on it.
type Variant struct {
	Python    string
	BuildType string
	MPIType   string
	Toolkit   string
}

// String renders the variant tag used in node keys, env file names and env
// file headers, e.g. "py3.8-cuda-openmpi-11.2" or "py3.8-cpu-openmpi".
func (v Variant) String() string {
	var parts []string
	if v.Python != "" {
		parts = append(parts, "py"+v.Python)
	}
	for _, p := range []string{v.BuildType, v.MPIType, v.Toolkit} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, "-")
}

// PyNoDot returns the python version without dots ("3.8" -> "38").
func (v Variant) PyNoDot() string {
	return strings.ReplaceAll(v.Python, ".", "")
}

// Satisfies reports whether a build made for v can be used by a consumer
// built for other: every axis of v is either unset or equal to other's.
func (v Variant) Satisfies(other Variant) bool {
	return axisMatches(v.Python, other.Python) &&
		axisMatches(v.BuildType, other.BuildType) &&
		axisMatches(v.MPIType, other.MPIType) &&
		axisMatches(v.Toolkit, other.Toolkit)
}

// Overlaps reports whether some consumer variant could be satisfied by builds
// made for both v and other.
func (v Variant) Overlaps(other Variant) bool {
	return axisOverlaps(v.Python, other.Python) &&
		axisOverlaps(v.BuildType, other.BuildType) &&
		axisOverlaps(v.MPIType, other.MPIType) &&
		axisOverlaps(v.Toolkit, other.Toolkit)
}

func axisOverlaps(a, b string) bool {
	return a == "" || b == "" || a == b
}

func axisMatches(producer, consumer string) bool {
	return producer == "" || producer == consumer
}

// Compare orders variants by python version, build type, MPI type and
// toolkit version. Versions compare numerically so "3.10" sorts after "3.9".
func Compare(a, b Variant) int {
	if c := CompareVersions(a.Python, b.Python); c != 0 {
		return c
	}
	if c := strings.Compare(a.BuildType, b.BuildType); c != 0 {
		return c
	}
	if c := strings.Compare(a.MPIType, b.MPIType); c != 0 {
		return c
	}
	return CompareVersions(a.Toolkit, b.Toolkit)
}

// CompareVersions compares two version strings numerically when both parse
// as versions, and lexically otherwise. The empty string sorts first.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// Matrix is the set of requested values for each axis.
type Matrix struct {
	PythonVersions  []string
	BuildTypes      []string
	MPITypes        []string
	ToolkitVersions []string
}

// WithDefaults returns a copy of m where every empty axis is replaced by its
// default.
func (m Matrix) WithDefaults() Matrix {
	pick := func(v, def []string) []string {
		if len(v) == 0 {
			return append([]string(nil), def...)
		}
		return append([]string(nil), v...)
	}
	return Matrix{
		PythonVersions:  pick(m.PythonVersions, DefaultPythonVersions),
		BuildTypes:      pick(m.BuildTypes, DefaultBuildTypes),
		MPITypes:        pick(m.MPITypes, DefaultMPITypes),
		ToolkitVersions: pick(m.ToolkitVersions, DefaultToolkitVersions),
	}
}

// Validate checks that every version parses and every build type is known.
func (m Matrix) Validate() error {
	for _, py := range m.PythonVersions {
		if _, err := semver.NewVersion(py); err != nil {
			return fmt.Errorf("invalid python version %q: %w", py, err)
		}
	}
	for _, bt := range m.BuildTypes {
		if !IsKnownBuildType(bt) {
			return fmt.Errorf("unknown build type %q", bt)
		}
	}
	for _, tk := range m.ToolkitVersions {
		if _, err := semver.NewVersion(tk); err != nil {
			return fmt.Errorf("invalid cuda toolkit version %q: %w", tk, err)
		}
	}
	for _, mpi := range m.MPITypes {
		if strings.TrimSpace(mpi) == "" {
			return fmt.Errorf("empty MPI type")
		}
	}
	return nil
}

// IsKnownBuildType reports whether bt is a supported hardware build type.
func IsKnownBuildType(bt string) bool {
	return bt == BuildTypeCPU || bt == BuildTypeCUDA
}

// Variants expands the matrix into its sorted, de-duplicated variants. The
// toolkit axis only applies to cuda builds. An empty axis contributes a
// single unset value.
func (m Matrix) Variants() []Variant {
	seen := make(map[Variant]struct{})
	var out []Variant
	add := func(v Variant) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, py := range orUnset(m.PythonVersions) {
		for _, bt := range orUnset(m.BuildTypes) {
			for _, mpi := range orUnset(m.MPITypes) {
				if bt != BuildTypeCUDA {
					add(Variant{Python: py, BuildType: bt, MPIType: mpi})
					continue
				}
				for _, tk := range orUnset(m.ToolkitVersions) {
					add(Variant{Python: py, BuildType: bt, MPIType: mpi, Toolkit: tk})
				}
			}
		}
	}
	Sort(out)
	return out
}

func orUnset(axis []string) []string {
	if len(axis) == 0 {
		return []string{""}
	}
	return axis
}

// Sort orders variants in place using Compare.
func Sort(vs []Variant) {
	sort.SliceStable(vs, func(i, j int) bool { return Compare(vs[i], vs[j]) < 0 })
}
