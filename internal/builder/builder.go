// Package builder accumulates the pieces of a process invocation and renders
// them into an escaped command line for the host shell.
package builder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/procbuilder/internal/env"
	"github.com/loykin/procbuilder/internal/metrics"
	"github.com/loykin/procbuilder/internal/shell"
)

// ErrInvalidArgument is returned when a setter receives a value it cannot store.
var ErrInvalidArgument = errors.New("invalid argument")

// Builder collects arguments, a prefix, environment variables and a timeout.
// It is meant for a single owner and is not safe for concurrent mutation.
type Builder struct {
	arguments  []string
	prefix     []string
	env        env.Var
	envSet     bool
	inheritEnv bool
	timeout    *time.Duration
	workDir    string
	name       string
	provider   env.Provider
}

// New returns a Builder seeded with args that inherits the OS environment.
func New(args ...string) *Builder {
	return &Builder{
		arguments:  append([]string(nil), args...),
		env:        make(env.Var),
		inheritEnv: true,
		provider:   env.OS(),
	}
}

// Add appends one raw token to the arguments.
func (b *Builder) Add(token string) *Builder {
	b.arguments = append(b.arguments, token)
	return b
}

// SetArguments replaces all arguments.
func (b *Builder) SetArguments(tokens ...string) *Builder {
	b.arguments = append([]string(nil), tokens...)
	return b
}

// SetPrefix replaces the tokens rendered before the arguments.
func (b *Builder) SetPrefix(tokens ...string) *Builder {
	b.prefix = append([]string(nil), tokens...)
	return b
}

// SetEnv sets an explicit variable. Explicit variables always win over
// inherited ones of the same name.
func (b *Builder) SetEnv(key, value string) *Builder {
	b.env[key] = value
	b.envSet = true
	return b
}

// InheritEnvironmentVariables controls whether the parent environment is
// merged under the explicit variables at render time.
func (b *Builder) InheritEnvironmentVariables(enable bool) *Builder {
	b.inheritEnv = enable
	return b
}

// SetTimeout stores d as the invocation timeout. A negative d is rejected and
// the previous timeout is kept.
func (b *Builder) SetTimeout(d time.Duration) (*Builder, error) {
	if d < 0 {
		return b, fmt.Errorf("%w: timeout must be non-negative, got %s", ErrInvalidArgument, d)
	}
	b.timeout = &d
	return b, nil
}

// ClearTimeout removes any timeout.
func (b *Builder) ClearTimeout() *Builder {
	b.timeout = nil
	return b
}

// Timeout reports the configured timeout and whether one is set.
func (b *Builder) Timeout() (time.Duration, bool) {
	if b.timeout == nil {
		return 0, false
	}
	return *b.timeout, true
}

// SetWorkDir sets the directory the process is started in.
func (b *Builder) SetWorkDir(dir string) *Builder {
	b.workDir = dir
	return b
}

// SetName labels the invocation for logs, metrics and history.
func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

// WithEnvProvider replaces the source of the parent environment.
// A nil provider restores the OS environment.
func (b *Builder) WithEnvProvider(p env.Provider) *Builder {
	if p == nil {
		p = env.OS()
	}
	b.provider = p
	return b
}

// Render produces an Invocation for the host shell dialect.
func (b *Builder) Render() Invocation {
	return b.render(shell.Host())
}

func (b *Builder) render(d shell.Dialect) Invocation {
	tokens := make([]string, 0, len(b.prefix)+len(b.arguments))
	tokens = append(tokens, b.prefix...)
	tokens = append(tokens, b.arguments...)
	argv := shell.EscapeAll(tokens, d)

	inv := Invocation{
		Name:        b.name,
		Tokens:      tokens,
		Argv:        argv,
		CommandLine: strings.Join(argv, " "),
		Env:         b.renderEnv(),
		Dir:         b.workDir,
		Dialect:     d,
	}
	if inv.Name == "" && len(tokens) > 0 {
		inv.Name = defaultName(tokens[0])
	}
	if b.timeout != nil {
		t := *b.timeout
		inv.Timeout = &t
	}
	metrics.IncRender(d.String())
	return inv
}

// defaultName is the last path element of the program token, with either
// separator, so "/usr/bin/php" and `C:\php\php.exe` name php and php.exe.
func defaultName(program string) string {
	trimmed := strings.TrimRight(program, `/\`)
	if trimmed == "" {
		return program
	}
	return trimmed[strings.LastIndexAny(trimmed, `/\`)+1:]
}

// renderEnv returns nil when the parent environment should be used unchanged.
func (b *Builder) renderEnv() env.Var {
	if !b.inheritEnv {
		return b.env.Clone()
	}
	if !b.envSet {
		return nil
	}
	return env.Overlay(b.provider.Snapshot(), b.env)
}
