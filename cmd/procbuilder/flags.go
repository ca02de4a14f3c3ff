package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// InvocationFlags override or replace what an invocation file declares.
type InvocationFlags struct {
	Name         string
	Prefix       string // split like a POSIX shell would
	Env          []string
	EnvFiles     []string
	NoInheritEnv bool
	Timeout      time.Duration
	WorkDir      string
	JSON         bool
	HistoryDSN   string
	LogDir       string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen     string
	BasePath   string
	Token      string
	HistoryDSN string
}
