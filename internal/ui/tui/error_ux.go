package tui

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aalvaropc/vgate/internal/domain"
)

var reLine = regexp.MustCompile(`(?i)\bline\s+(\d+)\b`)

func userMessage(err error) string {
	if err == nil {
		return ""
	}
	if domain.IsCancellation(err) {
		return "Gate aborted"
	}

	var oe *domain.OpError
	if errors.As(err, &oe) {
		switch oe.Kind {

		case domain.KindNotFound:
			switch {
			case strings.Contains(oe.Op, "gitcheckout.resolve"):
				return "Revision not found"
			case strings.Contains(oe.Op, "workflow"):
				return "Workflow not found"
			case strings.Contains(oe.Op, "runstore"):
				return "Run not found"
			case strings.Contains(oe.Op, "workspacefinder.findroot"):
				return "Workspace not found"
			}
			return "Not found"

		case domain.KindMissingVar:
			v := extractMissingVarName(err.Error())
			if v == "" {
				return "Missing variable"
			}
			return "Missing variable " + v

		case domain.KindInvalidConfig:
			if strings.Contains(oe.Op, "workflow.validate") || strings.Contains(oe.Op, "gate.expand") {
				return "Invalid workflow (run `vgate validate`)"
			}

			base := "config"
			if strings.TrimSpace(oe.Path) != "" {
				base = filepath.Base(oe.Path)
			}

			line := extractLine(err.Error())
			if line != "" {
				return "Invalid YAML at " + base + " line " + line
			}

			if looksLikeYAMLProblem(err.Error()) {
				return "Invalid YAML at " + base
			}
			return "Invalid config"

		case domain.KindExecution:
			if errors.Is(err, domain.ErrUnsupported) {
				return "Executor cannot host this platform"
			}
			if strings.HasPrefix(oe.Op, "containerexec") {
				return "Container engine unavailable (see logs)"
			}
			return "Execution failed (see logs)"

		default:
			return "Unexpected error (see logs)"
		}
	}

	if looksLikeYAMLProblem(err.Error()) {
		line := extractLine(err.Error())
		if line != "" {
			return "Invalid YAML line " + line
		}
		return "Invalid YAML"
	}
	if strings.Contains(strings.ToLower(err.Error()), "missing variable") {
		v := extractMissingVarName(err.Error())
		if v != "" {
			return "Missing variable " + v
		}
		return "Missing variable"
	}

	return "Unexpected error (see logs)"
}

func looksLikeYAMLProblem(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "yaml:") || strings.Contains(ls, "did not find expected") || strings.Contains(ls, "cannot unmarshal")
}

func extractLine(s string) string {
	m := reLine.FindStringSubmatch(s)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

func extractMissingVarName(s string) string {
	ls := strings.ToLower(s)

	for _, marker := range []string{"missing variable:", "missing variable "} {
		i := strings.LastIndex(ls, marker)
		if i < 0 {
			continue
		}
		fields := strings.Fields(strings.Trim(strings.TrimSpace(s[i+len(marker):]), " .,:;\"'"))
		if len(fields) == 0 {
			return ""
		}
		return strings.Trim(fields[0], " .,:;\"'")
	}

	return ""
}
