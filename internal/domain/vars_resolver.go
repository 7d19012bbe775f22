package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VarResolver resolves {{var}} placeholders in step commands and environments.
// Per-cell built-ins are always available: {{toolchain}}, {{declared}}, {{platform}},
// {{os}}, {{job}} and {{$timestamp}}.
//
// This lives in domain because it does not depend on YAML/FS/exec. Only stdlib.
type VarResolver struct {
	now func() time.Time
}

// VarResolverOption configures VarResolver.
type VarResolverOption func(*VarResolver)

// WithNow overrides the clock (useful for tests).
func WithNow(now func() time.Time) VarResolverOption {
	return func(r *VarResolver) { r.now = now }
}

func NewVarResolver(opts ...VarResolverOption) *VarResolver {
	r := &VarResolver{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RuntimeResolver caches built-ins for a single cell so every command of the
// cell sees the same {{$timestamp}}.
type RuntimeResolver struct {
	base     Vars
	builtins Vars
	inner    *VarResolver
}

// NewRuntime prepares a resolver for one cell. vars are copied.
func (r *VarResolver) NewRuntime(vars Vars, cell Cell) *RuntimeResolver {
	baseCopy := Vars{}
	for k, v := range vars {
		baseCopy[k] = v
	}

	return &RuntimeResolver{
		base: baseCopy,
		builtins: Vars{
			"toolchain":  string(cell.Toolchain),
			"declared":   string(cell.Declared),
			"platform":   string(cell.Platform),
			"os":         cell.Platform.RunnerLabel(),
			"job":        cell.Job,
			"$timestamp": strconv.FormatInt(r.now().Unix(), 10),
		},
		inner: r,
	}
}

// ResolveString resolves placeholders in a string.
func (rr *RuntimeResolver) ResolveString(s string) (string, error) {
	return rr.inner.resolveStringWith(rr.base, rr.builtins, s)
}

// ResolveArgs resolves placeholders in every argument and returns a new slice.
func (rr *RuntimeResolver) ResolveArgs(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, a := range args {
		rv, err := rr.ResolveString(a)
		if err != nil {
			return nil, wrapField(err, fmt.Sprintf("run[%d]", i))
		}
		out = append(out, rv)
	}
	return out, nil
}

// ResolveEnv resolves placeholders in environment values.
func (rr *RuntimeResolver) ResolveEnv(env Vars) (Vars, error) {
	out := Vars{}
	for k, v := range env {
		rv, err := rr.ResolveString(v)
		if err != nil {
			return nil, wrapField(err, "env."+k)
		}
		out[k] = rv
	}
	return out, nil
}

// ResolveCommand resolves argv and env of a command.
// It returns a copy (does not mutate input).
func (rr *RuntimeResolver) ResolveCommand(cmd Command) (Command, error) {
	out := cmd

	argv, err := rr.ResolveArgs(cmd.Argv)
	if err != nil {
		return Command{}, err
	}
	out.Argv = argv

	if cmd.Env != nil {
		env, err := rr.ResolveEnv(cmd.Env)
		if err != nil {
			return Command{}, err
		}
		out.Env = env
	}

	return out, nil
}

func (r *VarResolver) resolveStringWith(vars Vars, builtins Vars, s string) (string, error) {
	// Fast path: no token start.
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s) + 16)

	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			start := i + 2

			end := strings.Index(s[start:], "}}")
			if end < 0 {
				return "", &OpError{
					Op:   "vars.resolve",
					Kind: KindInvalidConfig,
					Err:  errors.New("unclosed placeholder"),
				}
			}
			end = start + end

			name := strings.TrimSpace(s[start:end])
			if name == "" {
				return "", &OpError{
					Op:   "vars.resolve",
					Kind: KindInvalidConfig,
					Err:  errors.New("empty placeholder"),
				}
			}

			val, ok := builtins[name]
			if !ok {
				val, ok = vars[name]
			}
			if !ok {
				return "", &OpError{
					Op:   "vars.resolve",
					Kind: KindMissingVar,
					Err:  fmt.Errorf("missing variable: %s: %w", name, ErrMissingVar),
				}
			}

			b.WriteString(val)
			i = end + 2
			continue
		}

		b.WriteByte(s[i])
		i++
	}

	return b.String(), nil
}

// ResolveToolchains resolves placeholders in matrix labels (e.g. "{{msrv}}") against
// workflow vars only; cell built-ins do not exist yet at expansion time.
func (r *VarResolver) ResolveToolchains(vars Vars, in []Toolchain) ([]Toolchain, error) {
	out := make([]Toolchain, 0, len(in))
	for i, tc := range in {
		s, err := r.resolveStringWith(vars, nil, string(tc))
		if err != nil {
			return nil, wrapField(err, fmt.Sprintf("matrix.toolchain[%d]", i))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &OpError{
				Op:   "vars.resolve",
				Kind: KindInvalidConfig,
				Err:  fmt.Errorf("matrix.toolchain[%d]: %q resolves to an empty toolchain: %w", i, tc, ErrInvalidConfig),
			}
		}
		out = append(out, Toolchain(s))
	}
	return out, nil
}

func wrapField(err error, field string) error {
	// Keep Kind information, but add context about which field was being resolved.
	return &OpError{
		Op:   "vars.resolve",
		Kind: kindFrom(err),
		Err:  fmt.Errorf("%s: %w", field, err),
	}
}

func kindFrom(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindExecution
}
