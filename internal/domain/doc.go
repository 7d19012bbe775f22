// Package domain contains the core model of the verification gate: workflows, the
// toolchain x platform matrix, the commands each cell runs, and the results they produce.
//
// The domain is transport- and persistence-agnostic: it does not depend on YAML parsing,
// os/exec, containers, or the filesystem. Infra/adapters map into/from these types.
package domain
