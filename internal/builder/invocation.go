package builder

import (
	"time"

	"github.com/loykin/procbuilder/internal/env"
	"github.com/loykin/procbuilder/internal/shell"
)

// Invocation is the rendered, read-only result of a Builder.
type Invocation struct {
	Name        string         `json:"name"`
	CommandLine string         `json:"command_line"`
	Argv        []string       `json:"argv"`   // escaped tokens
	Tokens      []string       `json:"tokens"` // raw tokens, prefix first
	Env         env.Var        `json:"env"`    // nil means inherit the parent environment
	Timeout     *time.Duration `json:"timeout,omitempty"`
	Dir         string         `json:"dir,omitempty"`
	Dialect     shell.Dialect  `json:"-"`
}

// InheritsEnv reports whether the launcher should pass the parent environment unchanged.
func (i Invocation) InheritsEnv() bool { return i.Env == nil }

// Environ returns the environment as sorted "K=V" pairs, or nil to inherit.
func (i Invocation) Environ() []string {
	if i.Env == nil {
		return nil
	}
	return i.Env.Environ()
}
