package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vk/recipegrid/internal/condabuild"
	"github.com/vk/recipegrid/internal/variant"
)

// Environment variables providing defaults for the matching flags.
const (
	EnvOutputFolder     = "RECIPEGRID_OUTPUT_FOLDER"
	EnvRepositoryFolder = "RECIPEGRID_REPOSITORY_FOLDER"
	EnvCondaBuild       = "RECIPEGRID_CONDA_BUILD"
	EnvWorkers          = "RECIPEGRID_WORKERS"
)

const (
	DefaultOutputFolder     = "condabuild"
	DefaultRepositoryFolder = "."
	DefaultWorkers          = 1
)

// Config holds all the necessary configuration for one run.
type Config struct {
	// EnvFiles are the environment files, directories or URLs to load.
	EnvFiles []string
	Matrix   variant.Matrix

	OutputFolder     string
	RepositoryFolder string
	CondaBuild       string

	// Channels are searched after the channels of the environment files.
	Channels []string
	// Exclude names packages left out of every environment file.
	Exclude   []string
	SkipBuild bool

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates cfg and fills in defaults. Folders are made absolute,
// as conda-build runs inside the feedstock checkout. The returned matrix has
// every empty axis replaced by its default.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.EnvFiles) == 0 {
		return nil, errors.New("at least one environment file is required")
	}
	if cfg.OutputFolder == "" {
		cfg.OutputFolder = DefaultOutputFolder
	}
	if cfg.RepositoryFolder == "" {
		cfg.RepositoryFolder = DefaultRepositoryFolder
	}
	if cfg.CondaBuild == "" {
		cfg.CondaBuild = condabuild.DefaultCondaBuild
	}
	for _, dir := range []*string{&cfg.OutputFolder, &cfg.RepositoryFolder} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.WorkerCount)
	}

	cfg.Matrix = cfg.Matrix.WithDefaults()
	if err := cfg.Matrix.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults are flag defaults taken from the environment.
type Defaults struct {
	OutputFolder     string
	RepositoryFolder string
	CondaBuild       string
	Workers          int
}

// LoadDefaults reads flag defaults from the process environment, after
// loading the optional .env file of the working directory. Variables already
// set in the environment win over the .env file.
func LoadDefaults() (Defaults, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Defaults{}, fmt.Errorf("load .env: %w", err)
	}

	d := Defaults{
		OutputFolder:     firstNonEmpty(os.Getenv(EnvOutputFolder), DefaultOutputFolder),
		RepositoryFolder: firstNonEmpty(os.Getenv(EnvRepositoryFolder), DefaultRepositoryFolder),
		CondaBuild:       firstNonEmpty(os.Getenv(EnvCondaBuild), condabuild.DefaultCondaBuild),
		Workers:          DefaultWorkers,
	}
	if raw := strings.TrimSpace(os.Getenv(EnvWorkers)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Defaults{}, fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		d.Workers = n
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
