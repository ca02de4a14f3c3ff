package env

import (
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Var maps variable names to values.
type Var map[string]string

// Clone returns a copy of v; a nil Var clones to an empty, non-nil one.
func (v Var) Clone() Var {
	out := make(Var, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Environ renders v as sorted "K=V" pairs, the form exec.Cmd.Env expects.
func (v Var) Environ() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+v[k])
	}
	return out
}

// Parse converts "K=V" pairs into a Var. Entries without '=' or with an
// empty key are skipped; later duplicates win.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Overlay returns a new Var holding base with explicit applied on top.
// Values from explicit always win.
func Overlay(base, explicit Var) Var {
	m := make(Var, len(base)+len(explicit))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range explicit {
		if k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// Provider supplies a snapshot of a parent environment.
// Snapshot must return a map the caller may keep and modify.
type Provider interface {
	Snapshot() Var
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Var

func (f ProviderFunc) Snapshot() Var { return f() }

type osProvider struct {
	environ func() []string
}

// OS returns a Provider reading the current process environment on every Snapshot.
func OS() Provider { return osProvider{environ: os.Environ} }

func (p osProvider) Snapshot() Var { return Parse(p.environ()) }

// Static returns a Provider that always yields a copy of v.
func Static(v Var) Provider {
	fixed := v.Clone()
	return ProviderFunc(func() Var { return fixed.Clone() })
}

type fileProvider struct {
	paths []string
	onErr func(path string, err error)
}

// Files returns a Provider that reads dotenv files on every Snapshot.
// Later files override earlier ones. Unreadable files are reported to onErr
// (which may be nil) and skipped.
func Files(onErr func(path string, err error), paths ...string) Provider {
	return fileProvider{paths: append([]string(nil), paths...), onErr: onErr}
}

func (p fileProvider) Snapshot() Var {
	m := make(Var)
	for _, path := range p.paths {
		pairs, err := godotenv.Read(path)
		if err != nil {
			if p.onErr != nil {
				p.onErr(path, err)
			}
			continue
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	return m
}

// Chain layers providers; values from later providers win.
func Chain(ps ...Provider) Provider {
	return ProviderFunc(func() Var {
		m := make(Var)
		for _, p := range ps {
			if p == nil {
				continue
			}
			for k, v := range p.Snapshot() {
				m[k] = v
			}
		}
		return m
	})
}

// ReadFiles loads dotenv files eagerly, failing on the first unreadable one.
func ReadFiles(paths ...string) (Var, error) {
	m := make(Var)
	for _, path := range paths {
		pairs, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	return m, nil
}
