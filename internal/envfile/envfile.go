// Package envfile writes and reads the conda environment files recipegrid
// emits, one per build variant.
//
// A file starts with a header comment recording its variant, followed by the
// environment itself in YAML:
//
//	#recipegrid-variant:py3.8-cuda-openmpi-11.2
//	name: tensorflow-env-py3.8-cuda-openmpi-11.2
//	channels:
//	  - file://tmp/output
//	  - defaults
//	dependencies:
//	  - numpy 1.19.2.* py38
package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/recipegrid/internal/variant"
	"gopkg.in/yaml.v3"
)

// VariantMarker is the keyword of the header line naming a file's variant.
const VariantMarker = "recipegrid-variant"

// DefaultChannel is always searched last.
const DefaultChannel = "defaults"

// Extension of emitted environment files.
const Extension = ".yaml"

// Descriptor is the YAML body of an environment file.
type Descriptor struct {
	Name         string   `yaml:"name"`
	Channels     []string `yaml:"channels"`
	Dependencies []string `yaml:"dependencies"`

	// Variant is read from the header line, not from the YAML body.
	Variant string `yaml:"-"`
}

// Channels returns the channel list of an environment file: the local output
// directory first, then the caller's channels, then DefaultChannel.
func Channels(callerChannels []string, outputDir string) []string {
	out := make([]string, 0, len(callerChannels)+2)
	out = append(out, "file:/"+outputDir)
	out = append(out, callerChannels...)
	return append(out, DefaultChannel)
}

// FileName returns the name of the environment file of a variant.
func FileName(envName string, v variant.Variant) string {
	return envName + "-" + v.String() + Extension
}

func header(v string) string {
	return "#" + VariantMarker + ":" + v + "\n"
}

// Encode writes d to w, preceded by the header line of its variant.
func Encode(w io.Writer, d Descriptor) error {
	if _, err := io.WriteString(w, header(d.Variant)); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

// Decode parses an environment file.
func Decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	v, _, err := scanVariant(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	d.Variant = v
	return &d, nil
}

// Read loads the environment file at path.
func Read(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	d, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode env file %s: %w", path, err)
	}
	return d, nil
}

// VariantString returns the variant recorded in the header line of the file
// at path. It returns false when the file has no such line.
func VariantString(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("read env file %s: %w", path, err)
	}
	defer f.Close()

	v, ok, err := scanVariant(f)
	if err != nil {
		return "", false, fmt.Errorf("read env file %s: %w", path, err)
	}
	return v, ok, nil
}

func scanVariant(r io.Reader) (string, bool, error) {
	prefix := "#" + VariantMarker + ":"
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(v), true, nil
		}
	}
	return "", false, scanner.Err()
}
