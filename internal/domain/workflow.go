package domain

import "strings"

// Toolchain identifies a compiler toolchain: a release channel (stable, beta, nightly)
// or an explicit version such as the minimum supported one ("1.63.0").
type Toolchain string

const (
	ToolchainStable  Toolchain = "stable"
	ToolchainBeta    Toolchain = "beta"
	ToolchainNightly Toolchain = "nightly"
)

// IsChannel reports whether t names a release channel rather than a pinned version.
func (t Toolchain) IsChannel() bool {
	switch t {
	case ToolchainStable, ToolchainBeta, ToolchainNightly:
		return true
	}
	return false
}

// Platform is the operating system a cell runs on.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
)

// GOOS returns the Go runtime.GOOS value hosting this platform.
func (p Platform) GOOS() string {
	switch p {
	case PlatformMacOS:
		return "darwin"
	default:
		return string(p)
	}
}

// RunnerLabel returns the hosted-runner label conventionally used for the platform.
func (p Platform) RunnerLabel() string {
	switch p {
	case PlatformLinux:
		return "ubuntu-latest"
	case PlatformMacOS:
		return "macos-latest"
	case PlatformWindows:
		return "windows-latest"
	}
	return string(p)
}

// ParsePlatform accepts a platform name, a GOOS value, or a hosted-runner label.
func ParsePlatform(s string) (Platform, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(v, "-"); i > 0 {
		v = v[:i] // ubuntu-latest, macos-14, windows-2022
	}
	switch v {
	case "linux", "ubuntu":
		return PlatformLinux, true
	case "macos", "darwin", "osx":
		return PlatformMacOS, true
	case "windows", "win":
		return PlatformWindows, true
	}
	return "", false
}

// PlatformForGOOS maps runtime.GOOS to a platform. ok is false for hosts the gate
// does not know how to describe.
func PlatformForGOOS(goos string) (Platform, bool) {
	switch goos {
	case "linux":
		return PlatformLinux, true
	case "darwin":
		return PlatformMacOS, true
	case "windows":
		return PlatformWindows, true
	}
	return "", false
}

// FeatureSet selects which crate features a step builds with.
type FeatureSet string

const (
	// FeaturesDefault builds with the crate's default feature set.
	FeaturesDefault FeatureSet = "default"
	// FeaturesNone suppresses default features (the reduced, no_std-style build).
	FeaturesNone FeatureSet = "none"
)

// CheckKind tells the gate what a step verifies, which drives both the command it
// expands to and how its failure is classified.
type CheckKind string

const (
	CheckTest   CheckKind = "test"
	CheckLint   CheckKind = "lint"
	CheckFormat CheckKind = "format"
	CheckCustom CheckKind = "custom"
)

// Step is one command inside a job.
type Step struct {
	Name     string
	Check    CheckKind
	Features FeatureSet

	// Run is an explicit argv. When empty the command is derived from Check/Features.
	Run []string
	Env Vars
}

// Install describes toolchain provisioning for a job.
type Install struct {
	// Toolchain, when set, pins the installed toolchain for every cell of the job,
	// regardless of the matrix's toolchain label.
	Toolchain  Toolchain
	Components []string
	Profile    string
}

// Matrix is the set of axes a job is expanded over.
type Matrix struct {
	Toolchains []Toolchain
	Platforms  []Platform
}

// Job is an independently scheduled group of cells sharing the same steps.
type Job struct {
	ID      string
	Name    string
	Matrix  Matrix
	Install Install
	Steps   []Step
}

// Workflow is the declarative description of the gate.
type Workflow struct {
	Name    string
	Trigger string

	// MSRV is the minimum supported toolchain version, available as {{msrv}}.
	MSRV Toolchain
	Vars Vars

	Jobs []Job
}

// Job returns the job with the given id.
func (w Workflow) Job(id string) (Job, bool) {
	for _, j := range w.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// WorkflowRef is a lightweight reference to a workflow file on disk.
type WorkflowRef struct {
	Name string
	Path string
}

// WorkspaceSpec describes where a workspace is created.
type WorkspaceSpec struct {
	Root string
}
