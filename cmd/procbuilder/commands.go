package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anmitsu/go-shlex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/procbuilder/internal/builder"
	"github.com/loykin/procbuilder/internal/config"
	"github.com/loykin/procbuilder/internal/env"
	"github.com/loykin/procbuilder/internal/history"
	"github.com/loykin/procbuilder/internal/history/factory"
	"github.com/loykin/procbuilder/internal/launcher"
	"github.com/loykin/procbuilder/internal/logger"
	"github.com/loykin/procbuilder/internal/metrics"
	"github.com/loykin/procbuilder/internal/server"
)

// exitError carries a child exit code out of cobra without printing it.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// loadConfig returns the invocation file named by --config, or defaults.
func loadConfig(g *GlobalFlags) (*config.FileConfig, error) {
	if g.ConfigPath == "" {
		d := config.Defaults()
		return &d, nil
	}
	fc, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// newBuilder starts from the config file and applies flags and positional
// arguments on top. Positional arguments replace the file's args.
func newBuilder(cmd *cobra.Command, fc *config.FileConfig, f *InvocationFlags, args []string) (*builder.Builder, error) {
	b, err := fc.Builder()
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		b.SetArguments(args...)
	}
	if f.Prefix != "" {
		tokens, err := shlex.Split(f.Prefix, true)
		if err != nil {
			return nil, fmt.Errorf("parse --prefix: %w", err)
		}
		b.SetPrefix(tokens...)
	}
	if f.Name != "" {
		b.SetName(f.Name)
	}
	if f.WorkDir != "" {
		b.SetWorkDir(f.WorkDir)
	}
	if f.NoInheritEnv {
		b.InheritEnvironmentVariables(false)
	}
	fileVars, err := env.ReadFiles(f.EnvFiles...)
	if err != nil {
		return nil, fmt.Errorf("read --env-file: %w", err)
	}
	for k, v := range fileVars {
		b.SetEnv(k, v)
	}
	for _, kv := range f.Env {
		parsed := env.Parse([]string{kv})
		if len(parsed) == 0 {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		for k, v := range parsed {
			b.SetEnv(k, v)
		}
	}
	if cmd.Flags().Changed("timeout") {
		if _, err := b.SetTimeout(f.Timeout); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func render(b *builder.Builder) (builder.Invocation, error) {
	inv := b.Render()
	if len(inv.Tokens) == 0 {
		return inv, errors.New("nothing to run: give --prefix, arguments or a --config with args")
	}
	return inv, nil
}

func newLogger(g *GlobalFlags, fc *config.FileConfig, w io.Writer) *slog.Logger {
	cfg := fc.Log
	if g.LogLevel != "" {
		cfg.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Format = g.LogFormat
	}
	return logger.NewLogger(cfg, w)
}

func openSink(dsn string) (history.Sink, func(), error) {
	if dsn == "" {
		return nil, func() {}, nil
	}
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open history sink: %w", err)
	}
	closeFn := func() {
		if c, ok := sink.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return sink, closeFn, nil
}

type renderOutput struct {
	Name        string            `json:"name"`
	CommandLine string            `json:"command_line"`
	Argv        []string          `json:"argv"`
	Env         map[string]string `json:"env"`
	Timeout     string            `json:"timeout,omitempty"`
	Dir         string            `json:"dir,omitempty"`
	Dialect     string            `json:"dialect"`
}

func runRender(cmd *cobra.Command, g *GlobalFlags, f *InvocationFlags, args []string) error {
	fc, err := loadConfig(g)
	if err != nil {
		return err
	}
	b, err := newBuilder(cmd, fc, f, args)
	if err != nil {
		return err
	}
	inv, err := render(b)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !f.JSON {
		_, err = fmt.Fprintln(out, inv.CommandLine)
		return err
	}
	ro := renderOutput{
		Name:        inv.Name,
		CommandLine: inv.CommandLine,
		Argv:        inv.Argv,
		Env:         inv.Env,
		Dir:         inv.Dir,
		Dialect:     inv.Dialect.String(),
	}
	if inv.Timeout != nil {
		ro.Timeout = inv.Timeout.String()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ro)
}

func runRun(cmd *cobra.Command, g *GlobalFlags, f *InvocationFlags, args []string) error {
	fc, err := loadConfig(g)
	if err != nil {
		return err
	}
	b, err := newBuilder(cmd, fc, f, args)
	if err != nil {
		return err
	}
	dsn := fc.History.DSN
	if f.HistoryDSN != "" {
		dsn = f.HistoryDSN
	}
	sink, closeSink, err := openSink(dsn)
	if err != nil {
		return err
	}
	defer closeSink()

	l := launcher.New(newLogger(g, fc, cmd.ErrOrStderr()))
	l.Sink = sink
	l.Log = fc.Log
	if f.LogDir != "" {
		l.Log.File.Dir = f.LogDir
	}
	if !l.Log.File.Enabled() {
		l.Stdout = cmd.OutOrStdout()
		l.Stderr = cmd.ErrOrStderr()
	}
	l.Stdin = cmd.InOrStdin()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	inv, err := render(b)
	if err != nil {
		return err
	}
	res, err := l.Run(ctx, inv)
	if errors.Is(err, launcher.ErrLaunch) {
		return err
	}
	switch {
	case res.TimedOut:
		return &exitError{code: 124}
	case res.ExitCode > 0:
		return &exitError{code: res.ExitCode}
	case res.ExitCode < 0:
		// killed by a signal
		return &exitError{code: 1}
	}
	return nil
}

func runServe(cmd *cobra.Command, g *GlobalFlags, f *ServeFlags) error {
	fc, err := loadConfig(g)
	if err != nil {
		return err
	}
	listen, base, token, dsn := fc.Server.Listen, fc.Server.BasePath, fc.Server.Token, fc.History.DSN
	if f.Listen != "" {
		listen = f.Listen
	}
	if f.BasePath != "" {
		base = f.BasePath
	}
	if f.Token != "" {
		token = f.Token
	}
	if f.HistoryDSN != "" {
		dsn = f.HistoryDSN
	}
	sink, closeSink, err := openSink(dsn)
	if err != nil {
		return err
	}
	defer closeSink()

	log := newLogger(g, fc, cmd.ErrOrStderr())
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	l := launcher.New(log)
	l.Sink = sink
	l.Log = fc.Log

	srv, err := server.NewServer(listen, server.NewRouter(l, base).RequireToken(token))
	if err != nil {
		return err
	}
	if token == "" {
		log.Warn("serving without a token; /run executes commands for any local client", "listen", listen)
	}
	log.Info("serving", "listen", listen, "base", base)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
