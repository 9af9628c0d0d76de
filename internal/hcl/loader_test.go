package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/recipegrid/internal/fetch"
	"github.com/vk/recipegrid/internal/variant"
)

// writeFiles writes the given files relative to a fresh temp dir and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	f, err := fetch.New(nil, 0)
	require.NoError(t, err)
	return NewLoader(f)
}

const baseEnv = `
channels = ["conda-forge"]
external_dependencies = ["cudnn 8.1", "nccl"]

recipe "numpy" {
  version = "1.19.2"
  output "numpy" {}
}
`

const tensorflowEnv = `
imports  = ["base.hcl"]
channels = ["conda-forge", "my-channel"]
external_dependencies = ["nccl", "six 1.15"]

recipe "tensorflow" {
  repository       = "https://github.com/open-ce/tensorflow-feedstock"
  git_tag          = "v1.5.0"
  version          = "2.4.1"
  build_types      = ["cpu", "cuda"]
  mpi_types        = ["openmpi"]
  when             = python != "3.6"
  run_dependencies = [
    "python ${python}",
    "numpy >=1.19",
    build_type == "cuda" ? "cudatoolkit ${toolkit}" : "",
  ]

  output "tensorflow-base" {
    build_string = "py${py_nodot}_${build_type}${toolkit}"
  }
}
`

func TestLoad_FollowsImports(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"envs/base.hcl":       baseEnv,
		"envs/tensorflow.hcl": tensorflowEnv,
	})
	l := newTestLoader(t)

	model, conv, err := l.Load(context.Background(), filepath.Join(dir, "envs", "tensorflow.hcl"))
	require.NoError(t, err)
	require.NotNil(t, conv)

	require.Len(t, model.Recipes, 2)
	assert.Equal(t, "numpy", model.Recipes[0].Name)
	assert.Equal(t, "tensorflow", model.Recipes[1].Name)
	assert.Equal(t, []string{"conda-forge", "my-channel"}, model.Channels)
	assert.Equal(t, []string{"cudnn 8.1", "nccl", "six 1.15"}, model.ExternalDependencies)
	require.Len(t, model.Sources, 2)
	assert.Equal(t, "base.hcl", filepath.Base(model.Sources[0]))

	tf := model.Recipes[1]
	assert.True(t, tf.Python)
	assert.Equal(t, "v1.5.0", tf.GitTag)
	assert.Equal(t, []string{"openmpi"}, tf.MPITypes)
	require.Len(t, tf.Outputs, 1)
	assert.Equal(t, "tensorflow-base", tf.Outputs[0].Name)
}

func TestLoad_DirectoryAndDiamondImports(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"base.hcl":       baseEnv,
		"tensorflow.hcl": tensorflowEnv,
		"pytorch.hcl": `
imports = ["base.hcl"]
recipe "pytorch" {
  version = "1.7.1"
  python  = true
  output "pytorch" {}
}
`,
	})
	l := newTestLoader(t)

	model, _, err := l.Load(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	for _, r := range model.Recipes {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"numpy", "pytorch", "tensorflow"}, names)
	assert.Len(t, model.Sources, 3)
}

func TestLoad_PythonIndependentRecipe(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"env.hcl": `
recipe "cudnn-headers" {
  version = "8.1"
  python  = false
  output "cudnn-headers" {}
}
`,
	})
	model, _, err := newTestLoader(t).Load(context.Background(), filepath.Join(dir, "env.hcl"))
	require.NoError(t, err)
	require.Len(t, model.Recipes, 1)
	assert.False(t, model.Recipes[0].Python)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("import cycle", func(t *testing.T) {
		dir := writeFiles(t, map[string]string{
			"a.hcl": `imports = ["b.hcl"]`,
			"b.hcl": `imports = ["a.hcl"]`,
		})
		_, _, err := newTestLoader(t).Load(context.Background(), filepath.Join(dir, "a.hcl"))
		assert.ErrorContains(t, err, "import cycle")
	})

	t.Run("syntax error names the file", func(t *testing.T) {
		dir := writeFiles(t, map[string]string{
			"broken.hcl": `recipe "x" {`,
		})
		_, _, err := newTestLoader(t).Load(context.Background(), filepath.Join(dir, "broken.hcl"))
		assert.ErrorContains(t, err, "failed to parse HCL file")
		assert.ErrorContains(t, err, "broken.hcl")
	})

	t.Run("missing version", func(t *testing.T) {
		dir := writeFiles(t, map[string]string{
			"env.hcl": `recipe "x" {}`,
		})
		_, _, err := newTestLoader(t).Load(context.Background(), filepath.Join(dir, "env.hcl"))
		assert.ErrorContains(t, err, "failed to decode HCL file")
	})

	t.Run("missing path", func(t *testing.T) {
		_, _, err := newTestLoader(t).Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.ErrorContains(t, err, "nope.hcl")
	})
}

func TestConverter_EvaluatesPerVariant(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"base.hcl":       baseEnv,
		"tensorflow.hcl": tensorflowEnv,
	})
	model, conv, err := newTestLoader(t).Load(context.Background(), filepath.Join(dir, "tensorflow.hcl"))
	require.NoError(t, err)
	tf, ok := model.RecipeByName("tensorflow")
	require.True(t, ok)

	cuda := variant.Variant{Python: "3.8", BuildType: "cuda", MPIType: "openmpi", Toolkit: "11.2"}
	cpu := variant.Variant{Python: "3.8", BuildType: "cpu", MPIType: "openmpi"}

	deps, err := conv.EvalStringList(tf.RunDependencies, cuda)
	require.NoError(t, err)
	assert.Equal(t, []string{"python 3.8", "numpy >=1.19", "cudatoolkit 11.2"}, deps)

	deps, err = conv.EvalStringList(tf.RunDependencies, cpu)
	require.NoError(t, err)
	assert.Equal(t, []string{"python 3.8", "numpy >=1.19"}, deps)

	build, err := conv.EvalString(tf.Outputs[0].BuildString, cuda)
	require.NoError(t, err)
	assert.Equal(t, "py38_cuda11.2", build)

	ok, err = conv.EvalBool(tf.When, cuda)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = conv.EvalBool(tf.When, variant.Variant{Python: "3.6"})
	require.NoError(t, err)
	assert.False(t, ok)

	numpy, _ := model.RecipeByName("numpy")
	ok, err = conv.EvalBool(numpy.When, cpu)
	require.NoError(t, err)
	assert.True(t, ok, "absent when evaluates to true")

	build, err = conv.EvalString(numpy.Outputs[0].BuildString, cpu)
	require.NoError(t, err)
	assert.Empty(t, build, "absent build_string evaluates to empty")

	deps, err = conv.EvalStringList(numpy.RunDependencies, cpu)
	require.NoError(t, err)
	assert.Empty(t, deps)
}
