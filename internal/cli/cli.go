package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/recipegrid/internal/app"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/envfile"
	"github.com/vk/recipegrid/internal/fetch"
	"github.com/vk/recipegrid/internal/hcl"
	"github.com/vk/recipegrid/internal/variant"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// globalFlags are shared by every command.
type globalFlags struct {
	logLevel  string
	logFormat string
}

func (g *globalFlags) validate() error {
	g.logFormat = strings.ToLower(g.logFormat)
	if g.logFormat != "text" && g.logFormat != "json" {
		return usageError("invalid log-format: must be 'text' or 'json'")
	}
	g.logLevel = strings.ToLower(g.logLevel)
	switch g.logLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return nil
}

// Execute runs the command line given by args. Command output goes to outW,
// logs and usage text to errW. Options are passed on to the App of a build.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, opts ...app.Option) error {
	defaults, err := app.LoadDefaults()
	if err != nil {
		return err
	}
	root := NewRootCommand(defaults, opts...)
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(errW)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the recipegrid command tree. Flag defaults that may
// come from the environment are taken from defaults.
func NewRootCommand(defaults app.Defaults, opts ...app.Option) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "recipegrid",
		Short:         "Build conda recipes over a variant matrix and emit one environment file per variant",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.validate()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	build := &cobra.Command{
		Use:   "build",
		Short: "Build recipes",
	}
	build.AddCommand(newBuildEnvCommand(g, defaults, opts))

	env := &cobra.Command{
		Use:   "env",
		Short: "Inspect generated environment files",
	}
	env.AddCommand(newEnvVariantCommand(), newEnvShowCommand())

	root.AddCommand(build, env)
	return root
}

// args wraps a positional argument validator so its failure is a usage error.
func args(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError("%v", err)
		}
		return nil
	}
}

func newBuildEnvCommand(g *globalFlags, defaults app.Defaults, opts []app.Option) *cobra.Command {
	var (
		cfg         app.Config
		pythons     []string
		buildTypes  []string
		mpiTypes    []string
		cudaVersion []string
	)

	cmd := &cobra.Command{
		Use:   "env [flags] ENV_FILE...",
		Short: "Build every recipe of the environment files and write one environment file per variant",
		Args:  args(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, paths []string) error {
			cfg.EnvFiles = paths
			cfg.Matrix = variant.Matrix{
				PythonVersions:  pythons,
				BuildTypes:      buildTypes,
				MPITypes:        mpiTypes,
				ToolkitVersions: cudaVersion,
			}
			cfg.LogLevel = g.logLevel
			cfg.LogFormat = g.logFormat

			appConfig, err := app.NewConfig(cfg)
			if err != nil {
				return usageError("%v", err)
			}

			f, err := fetch.New(nil, fetch.DefaultCacheSize)
			if err != nil {
				return err
			}
			a := app.NewApp(cmd.ErrOrStderr(), appConfig, hcl.NewLoader(f), opts...)
			res, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			for _, path := range res.EnvFiles {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&pythons, "python_versions", nil, "Comma separated python versions to build for.")
	flags.StringSliceVar(&buildTypes, "build_types", nil, "Comma separated build types to build for. Options: 'cpu', 'cuda'.")
	flags.StringSliceVar(&mpiTypes, "mpi_types", nil, "Comma separated MPI implementations to build for.")
	flags.StringSliceVar(&cudaVersion, "cuda_versions", nil, "Comma separated CUDA toolkit versions to build for.")
	flags.StringVar(&cfg.OutputFolder, "output_folder", defaults.OutputFolder, "Folder receiving built packages and environment files.")
	flags.StringVar(&cfg.RepositoryFolder, "repository_folder", defaults.RepositoryFolder, "Folder feedstocks are checked out to.")
	flags.StringVar(&cfg.CondaBuild, "conda_build", defaults.CondaBuild, "conda-build executable.")
	flags.StringSliceVar(&cfg.Channels, "channels", nil, "Extra channels searched by builds and environments.")
	flags.StringSliceVar(&cfg.Exclude, "exclude", nil, "Packages left out of the environment files.")
	flags.BoolVar(&cfg.SkipBuild, "skip_build", false, "Only write the environment files, without building.")
	flags.IntVar(&cfg.WorkerCount, "workers", defaults.Workers, "Number of concurrent builds.")
	return cmd
}

func newEnvVariantCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "variant FILE",
		Short: "Print the variant an environment file was generated for",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, paths []string) error {
			v, ok, err := envfile.VariantString(paths[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s has no %s header", paths[0], envfile.VariantMarker)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newEnvShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print an environment file in canonical form",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, paths []string) error {
			logger := ctxlog.FromContext(cmd.Context())
			d, err := envfile.Read(paths[0])
			if err != nil {
				return err
			}
			logger.Debug("Environment file read.", "path", paths[0], "dependencies", len(d.Dependencies))
			return envfile.Encode(cmd.OutOrStdout(), *d)
		},
	}
}
