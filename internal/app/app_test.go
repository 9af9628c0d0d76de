package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/recipegrid/internal/envfile"
	"github.com/vk/recipegrid/internal/executor"
	"github.com/vk/recipegrid/internal/variant"
)

const mlEnv = `
channels = ["conda-forge"]
external_dependencies = ["libgcc-ng >=9"]

recipe "numpy" {
  version = "1.19.2"
  output "numpy" {}
}

recipe "tensorflow" {
  version          = "2.4.1"
  build_types      = ["cpu", "cuda"]
  run_dependencies = [
    "numpy >=1.19",
    build_type == "cuda" ? "cudatoolkit ${toolkit}" : "",
  ]
  output "tensorflow-base" {}
}
`

var testMatrix = variant.Matrix{
	PythonVersions:  []string{"3.8"},
	BuildTypes:      []string{"cpu", "cuda"},
	ToolkitVersions: []string{"11.2"},
}

func writeEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ml.hcl")
	require.NoError(t, os.WriteFile(path, []byte(mlEnv), 0o644))
	return path
}

func TestRun_BuildsAndWritesEnvFiles(t *testing.T) {
	out := t.TempDir()
	runner := &RecordingRunner{}
	a, logs := SetupAppTest(t, Config{
		EnvFiles:     []string{writeEnv(t)},
		Matrix:       testMatrix,
		OutputFolder: out,
	}, WithRunner(runner))

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"numpy@py3.8", "tensorflow@py3.8-cpu", "tensorflow@py3.8-cuda-11.2"}, runner.Built)
	require.Len(t, res.Commands, 3)
	assert.Equal(t, "numpy", res.Commands[0].Recipe, "numpy is a dependency of both tensorflow builds")

	assert.Equal(t, []string{
		filepath.Join(out, "ml-py3.8-cpu-openmpi.yaml"),
		filepath.Join(out, "ml-py3.8-cuda-openmpi-11.2.yaml"),
	}, res.EnvFiles)

	cpu, err := envfile.Read(res.EnvFiles[0])
	require.NoError(t, err)
	assert.Equal(t, "py3.8-cpu-openmpi", cpu.Variant)
	assert.Equal(t, []string{"file:/" + out, "conda-forge", "defaults"}, cpu.Channels)
	assert.Contains(t, cpu.Dependencies, "numpy 1.19.2.* py38")
	assert.Contains(t, cpu.Dependencies, "tensorflow-base 2.4.1.* py38_cpu")
	assert.Contains(t, cpu.Dependencies, "libgcc-ng >=9")

	cudaFile, err := envfile.Read(res.EnvFiles[1])
	require.NoError(t, err)
	assert.Contains(t, cudaFile.Dependencies, "tensorflow-base 2.4.1.* py38_cuda11.2")
	assert.Contains(t, cudaFile.Dependencies, "cudatoolkit 11.2.*")

	raw, err := os.ReadFile(res.EnvFiles[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cuda")

	assert.Contains(t, logs.String(), "run_id=")
}

func TestRun_SkipBuild(t *testing.T) {
	runner := &RecordingRunner{}
	a, _ := SetupAppTest(t, Config{
		EnvFiles:     []string{writeEnv(t)},
		Matrix:       testMatrix,
		OutputFolder: t.TempDir(),
		SkipBuild:    true,
	}, WithRunner(runner))

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runner.Built)
	assert.Len(t, res.Commands, 3)
	assert.Len(t, res.EnvFiles, 2)
}

func TestRun_AgnosticRecipeBuiltAfterEveryVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ml.hcl")
	require.NoError(t, os.WriteFile(path, []byte(mlEnv+`
recipe "keras" {
  version          = "2.4.3"
  run_dependencies = ["tensorflow-base >=2.4"]
  output "keras" {}
}
`), 0o644))

	runner := &RecordingRunner{}
	a, _ := SetupAppTest(t, Config{
		EnvFiles:     []string{path},
		Matrix:       testMatrix,
		OutputFolder: t.TempDir(),
		WorkerCount:  4,
	}, WithRunner(runner))

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, runner.Built, 4)
	assert.Equal(t, "keras@py3.8", runner.Built[3], "keras needs both tensorflow builds")
	assert.Equal(t, "keras", res.Commands[3].Recipe)

	cpu, err := envfile.Read(res.EnvFiles[0])
	require.NoError(t, err)
	assert.Contains(t, cpu.Dependencies, "keras 2.4.3.* py38")
	for _, d := range cpu.Dependencies {
		assert.NotContains(t, d, "cuda")
	}
}

func TestRun_ExtraChannelsAndExclude(t *testing.T) {
	out := t.TempDir()
	a, _ := SetupAppTest(t, Config{
		EnvFiles:     []string{writeEnv(t)},
		Matrix:       variant.Matrix{PythonVersions: []string{"3.8"}, BuildTypes: []string{"cpu"}},
		OutputFolder: out,
		Channels:     []string{"my-channel", "conda-forge"},
		Exclude:      []string{"numpy"},
		SkipBuild:    true,
	})

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.EnvFiles, 1)

	d, err := envfile.Read(res.EnvFiles[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"file:/" + out, "conda-forge", "my-channel", "defaults"}, d.Channels)
	assert.Equal(t, []string{"libgcc-ng >=9", "tensorflow-base 2.4.1.* py38_cpu"}, d.Dependencies)
}

func TestRun_BuildFailureWritesNoEnvFiles(t *testing.T) {
	out := t.TempDir()
	errBoom := errors.New("exit status 1")
	runner := &RecordingRunner{Fail: map[string]error{"numpy": errBoom}}
	a, _ := SetupAppTest(t, Config{
		EnvFiles:     []string{writeEnv(t)},
		Matrix:       testMatrix,
		OutputFolder: out,
	}, WithRunner(runner))

	_, err := a.Run(context.Background())
	var buildErr *executor.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "numpy", buildErr.Recipe)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"numpy@py3.8"}, runner.Built)

	files, err := filepath.Glob(filepath.Join(out, "*"+envfile.Extension))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRun_LoadError(t *testing.T) {
	a, _ := SetupAppTest(t, Config{
		EnvFiles:     []string{filepath.Join(t.TempDir(), "missing.hcl")},
		OutputFolder: t.TempDir(),
	}, WithRunner(&RecordingRunner{}))

	_, err := a.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load environment files")
}

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfig(Config{EnvFiles: []string{"env.hcl"}, WorkerCount: 1})
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(cfg.OutputFolder))
		assert.Equal(t, DefaultOutputFolder, filepath.Base(cfg.OutputFolder))
		assert.True(t, filepath.IsAbs(cfg.RepositoryFolder))
		assert.Equal(t, "conda-build", cfg.CondaBuild)
		assert.Equal(t, variant.Matrix{}.WithDefaults(), cfg.Matrix)
	})

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"no env files", Config{WorkerCount: 1}, "at least one environment file"},
		{"no workers", Config{EnvFiles: []string{"env.hcl"}}, "workers must be at least 1"},
		{
			"bad python version",
			Config{EnvFiles: []string{"env.hcl"}, WorkerCount: 1, Matrix: variant.Matrix{PythonVersions: []string{"three"}}},
			`invalid python version "three"`,
		},
		{
			"unknown build type",
			Config{EnvFiles: []string{"env.hcl"}, WorkerCount: 1, Matrix: variant.Matrix{BuildTypes: []string{"rocm"}}},
			`unknown build type "rocm"`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvOutputFolder, "/srv/channel")
	t.Setenv(EnvRepositoryFolder, "")
	t.Setenv(EnvCondaBuild, "/opt/conda/bin/conda-build")
	t.Setenv(EnvWorkers, "4")

	d, err := LoadDefaults()
	require.NoError(t, err)
	assert.Equal(t, Defaults{
		OutputFolder:     "/srv/channel",
		RepositoryFolder: DefaultRepositoryFolder,
		CondaBuild:       "/opt/conda/bin/conda-build",
		Workers:          4,
	}, d)

	t.Setenv(EnvWorkers, "many")
	_, err = LoadDefaults()
	assert.ErrorContains(t, err, EnvWorkers)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warning", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = newLogger("bogus", "text", &buf)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("shown")))
	assert.NotContains(t, buf.String(), "hidden")
}
