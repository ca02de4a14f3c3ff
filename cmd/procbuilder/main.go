package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRenderCommand(globalFlags, &InvocationFlags{}),
		createRunCommand(globalFlags, &InvocationFlags{}),
		createServeCommand(globalFlags, &ServeFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "procbuilder",
		Short: "Build, escape and run process invocations",
		Long: `procbuilder assembles a command line from a prefix, arguments,
environment variables and a timeout, quotes it for the host shell,
and optionally runs it.

Examples:
  procbuilder render --prefix /usr/bin/php -- -v
  procbuilder run --env APP_ENV=prod --timeout 30s -- ./report.sh "it's monday"
  procbuilder render --config invocation.toml --json
  procbuilder serve --listen 127.0.0.1:8080`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "invocation file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "", "log format: text, json, color")
	return root
}

func addInvocationFlags(cmd *cobra.Command, f *InvocationFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "label used in logs and history")
	cmd.Flags().StringVar(&f.Prefix, "prefix", "", `tokens placed before the arguments, e.g. "/usr/bin/env php"`)
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "explicit variable KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&f.EnvFiles, "env-file", nil, "dotenv file with explicit variables (repeatable)")
	cmd.Flags().BoolVar(&f.NoInheritEnv, "no-inherit-env", false, "do not merge the parent environment")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "timeout, e.g. 30s (0 means none)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "working directory")
}

func createRenderCommand(g *GlobalFlags, f *InvocationFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [flags] [-- args...]",
		Short: "Print the escaped command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, g, f, args)
		},
	}
	addInvocationFlags(cmd, f)
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print the whole rendered invocation as JSON")
	return cmd
}

func createRunCommand(g *GlobalFlags, f *InvocationFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- args...]",
		Short: "Run the invocation and exit with its exit code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, f, args)
		},
	}
	addInvocationFlags(cmd, f)
	cmd.Flags().StringVar(&f.HistoryDSN, "history", "", "history sink DSN (sqlite path, postgres://, clickhouse://)")
	cmd.Flags().StringVar(&f.LogDir, "log-dir", "", "write child stdout/stderr to rotated files in this directory")
	return cmd
}

func createServeCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render/run HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (default from config or 127.0.0.1:8080)")
	cmd.Flags().StringVar(&f.BasePath, "base", "", "API base path (default from config or /api)")
	cmd.Flags().StringVar(&f.Token, "token", "", "bearer token required by /render and /run (default from config)")
	cmd.Flags().StringVar(&f.HistoryDSN, "history", "", "history sink DSN")
	return cmd
}
