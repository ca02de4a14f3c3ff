package procbuilder

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/procbuilder/internal/builder"
	cfg "github.com/loykin/procbuilder/internal/config"
	"github.com/loykin/procbuilder/internal/env"
	"github.com/loykin/procbuilder/internal/history"
	"github.com/loykin/procbuilder/internal/history/factory"
	"github.com/loykin/procbuilder/internal/launcher"
	"github.com/loykin/procbuilder/internal/metrics"
	iapi "github.com/loykin/procbuilder/internal/server"
	"github.com/loykin/procbuilder/internal/shell"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Builder = builder.Builder

type Invocation = builder.Invocation

type Dialect = shell.Dialect

const (
	POSIX   = shell.POSIX
	Windows = shell.Windows
)

type Env = env.Var

type EnvProvider = env.Provider

type Launcher = launcher.Launcher

type Result = launcher.Result

type Handle = launcher.Handle

type Config = cfg.FileConfig

type HistorySink = history.Sink

var (
	ErrInvalidArgument = builder.ErrInvalidArgument
	ErrLaunch          = launcher.ErrLaunch
)

// NewBuilder returns a Builder seeded with args.
func NewBuilder(args ...string) *Builder { return builder.New(args...) }

func NewLauncher(l *slog.Logger) *Launcher { return launcher.New(l) }

// Escape quotes a single token for the given dialect.
func Escape(token string, d Dialect) string { return shell.Escape(token, d) }

func HostDialect() Dialect { return shell.Host() }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink opens a sink from a DSN such as "sqlite:///var/lib/app/history.db",
// "postgres://..." or "clickhouse://...".
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the render/run API on addr under basePath. A non-empty
// token is required as a bearer token by /render and /run.
func NewHTTPServer(addr, basePath, token string, l *Launcher) (*http.Server, error) {
	return iapi.NewServer(addr, iapi.NewRouter(l, basePath).RequireToken(token))
}

// NewHTTPHandler returns the API handler for mounting into another server.
func NewHTTPHandler(basePath, token string, l *Launcher) http.Handler {
	return iapi.NewRouter(l, basePath).RequireToken(token).Handler()
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
