package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	cargoBin  = "cargo"
	rustupBin = "rustup"

	defaultProfile = "minimal"
)

// Command is a fully resolved process invocation.
type Command struct {
	Argv    []string
	Env     Vars
	Timeout time.Duration
}

// String renders the argv for display/logging.
func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// ProvisionCommand returns the toolchain installation command for a cell.
func ProvisionCommand(c Cell, in Install) Command {
	profile := in.Profile
	if strings.TrimSpace(profile) == "" {
		profile = defaultProfile
	}

	argv := []string{rustupBin, "toolchain", "install", string(c.Toolchain), "--profile", profile, "--no-self-update"}
	for _, comp := range in.Components {
		argv = append(argv, "--component", comp)
	}
	return Command{Argv: argv}
}

// StepCommand derives the argv for a check step. Explicit Run argv wins; it is
// returned as-is and resolved by the caller.
func StepCommand(c Cell, s Step) (Command, error) {
	if len(s.Run) > 0 {
		argv := make([]string, len(s.Run))
		copy(argv, s.Run)
		return Command{Argv: argv, Env: s.Env}, nil
	}

	tc := "+" + string(c.Toolchain)

	var argv []string
	switch s.Check {
	case CheckTest:
		argv = []string{cargoBin, tc, "test"}
		argv = appendFeatures(argv, s.Features)
	case CheckLint:
		argv = []string{cargoBin, tc, "clippy"}
		argv = appendFeatures(argv, s.Features)
		argv = append(argv, "--", "-D", "warnings")
	case CheckFormat:
		argv = []string{cargoBin, tc, "fmt", "--all", "--", "--check"}
	case CheckCustom:
		return Command{}, fmt.Errorf("step %q: custom steps require run: %w", s.Name, ErrInvalidConfig)
	default:
		return Command{}, fmt.Errorf("step %q: unknown check %q: %w", s.Name, s.Check, ErrInvalidConfig)
	}
	return Command{Argv: argv, Env: s.Env}, nil
}

func appendFeatures(argv []string, f FeatureSet) []string {
	if f == FeaturesNone {
		return append(argv, "--no-default-features")
	}
	return argv
}

// IsStrictLint reports whether a lint command promotes warnings to errors, either
// through lint arguments after "--" or through RUSTFLAGS in its env. Deny flags
// placed before "--" are cargo arguments and do not count.
func IsStrictLint(cmd Command) bool {
	if deniesWarnings(strings.Fields(cmd.Env["RUSTFLAGS"])) {
		return true
	}
	for i, a := range cmd.Argv {
		if a == "--" {
			return deniesWarnings(cmd.Argv[i+1:])
		}
	}
	return false
}

func deniesWarnings(args []string) bool {
	for i, a := range args {
		switch {
		case a == "-Dwarnings", a == "--deny=warnings":
			return true
		case (a == "-D" || a == "--deny") && i+1 < len(args) && args[i+1] == "warnings":
			return true
		}
	}
	return false
}

// IsVerifyOnlyFormat reports whether a format argv only checks and never rewrites files.
func IsVerifyOnlyFormat(argv []string) bool {
	for _, a := range argv {
		if a == "--check" {
			return true
		}
	}
	return false
}

// UsesReducedFeatures reports whether an argv disables default features.
func UsesReducedFeatures(argv []string) bool {
	for _, a := range argv {
		if a == "--no-default-features" {
			return true
		}
	}
	return false
}
