package constraint

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveSuffix is the extension of the artifacts produced by conda-build.
const ArchiveSuffix = ".tar.bz2"

// archiveSuffixes are recognised when parsing artifact filenames.
var archiveSuffixes = []string{ArchiveSuffix, ".conda"}

// OutputFileName returns the artifact filename for a package build.
func OutputFileName(pkg, version, build string) string {
	return pkg + "-" + version + "-" + build + ArchiveSuffix
}

// ParseOutputFile splits an artifact filename of the form
// <pkg>-<version>-<build><suffix> into its version and build string.
func ParseOutputFile(pkg, filename string) (version, build string, err error) {
	base := filepath.Base(filename)
	trimmed := base
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(base, suffix) {
			trimmed = strings.TrimSuffix(base, suffix)
			break
		}
	}
	if trimmed == base {
		return "", "", fmt.Errorf("artifact %q: unknown archive suffix", filename)
	}
	if !strings.HasPrefix(trimmed, pkg+"-") {
		return "", "", fmt.Errorf("artifact %q does not belong to package %q", filename, pkg)
	}
	rest := trimmed[len(pkg)+1:]
	i := strings.LastIndex(rest, "-")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("artifact %q: expected <version>-<build> after package name", filename)
	}
	return rest[:i], rest[i+1:], nil
}

// FromOutputFile returns the constraint pinning a package to the build
// recorded in its artifact filename: "<pkg> <version>.* <build>".
func FromOutputFile(pkg, filename string) (string, error) {
	version, build, err := ParseOutputFile(pkg, filename)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(version, Wildcard) {
		version += Wildcard
	}
	return pkg + " " + version + " " + build, nil
}
