package env

import (
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env composes the environment handed to the supervised server.
// Values are immutable: With returns a copy.
type Env struct {
	base Var // OS environment, when inherited
	vars Var // configured overrides, applied last
}

// New returns an empty Env. When inheritOS is true the current process
// environment is the base layer.
func New(inheritOS bool) *Env {
	e := &Env{base: make(Var), vars: make(Var)}
	if inheritOS {
		e.base = parse(os.Environ())
	}
	return e
}

// With returns a copy of e with kvs ("KEY=VALUE") applied as overrides.
// Malformed entries and entries with an empty key are skipped.
func (e *Env) With(kvs ...string) *Env {
	out := &Env{base: e.base, vars: make(Var, len(e.vars)+len(kvs))}
	for k, v := range e.vars {
		out.vars[k] = v
	}
	for k, v := range parse(kvs) {
		out.vars[k] = v
	}
	return out
}

// Build merges the layers and expands ${VAR} references against the merged
// map (single pass, no recursion). The result is sorted by key.
func (e *Env) Build() []string {
	m := make(Var, len(e.base)+len(e.vars))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
