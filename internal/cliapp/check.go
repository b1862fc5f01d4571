package cliapp

import (
	"fmt"
	"strings"

	"github.com/mir00r/bal/internal/config"
)

// CheckReport is the static-validation result for a config file, matching
// the {config_path, errors, warnings, backend_count} contract.
type CheckReport struct {
	ConfigPath   string   `json:"config_path"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	BackendCount int      `json:"backend_count"`
}

// HasErrors reports whether the config failed validation outright.
func (r *CheckReport) HasErrors() bool { return len(r.Errors) > 0 }

// HasWarnings reports whether the config is usable but has advisories.
func (r *CheckReport) HasWarnings() bool { return len(r.Warnings) > 0 }

// ToPlainText renders the human-readable report. In non-verbose mode it
// collapses to a result line plus a single what/why/do action triplet;
// verbose mode lists every error and warning.
func (r *CheckReport) ToPlainText(verbose bool) string {
	result := "OK"
	if r.HasErrors() {
		result = "FAILED"
	}
	lines := []string{
		"bal check",
		fmt.Sprintf("  result: %s", result),
		fmt.Sprintf("  backends: %d", r.BackendCount),
		fmt.Sprintf("  warnings: %d", len(r.Warnings)),
	}

	if !verbose {
		switch {
		case r.HasErrors():
			lines = append(lines, renderOperatorMessage(
				"configuration validation failed",
				"required fields are missing or invalid values were provided",
				"run 'bal check --verbose' and fix listed errors",
			)...)
		case r.HasWarnings():
			lines = append(lines, renderOperatorMessage(
				"configuration is usable but has warnings",
				"safe defaults or network-exposure settings may need review",
				"run 'bal doctor' now, then inspect warnings with 'bal check --verbose'",
			)...)
		default:
			lines = append(lines, "  next: run 'bal doctor'")
		}
		return strings.Join(lines, "\n")
	}

	lines = append(lines, fmt.Sprintf("  config: %s", r.ConfigPath))
	if len(r.Errors) == 0 {
		lines = append(lines, "  errors: none")
	} else {
		lines = append(lines, fmt.Sprintf("  errors: %d", len(r.Errors)))
		for _, e := range r.Errors {
			lines = append(lines, "    - "+e)
		}
	}
	if len(r.Warnings) == 0 {
		lines = append(lines, "  warning_details: none")
	} else {
		lines = append(lines, "  warning_details:")
		for _, w := range r.Warnings {
			lines = append(lines, "    - "+w)
		}
	}
	return strings.Join(lines, "\n")
}

// RunCheck loads and validates the config at path (resolving the default
// path if empty) without starting anything, and reports schema/bound
// violations as errors and soft concerns as warnings.
func RunCheck(path string) (*CheckReport, error) {
	resolved, err := config.Resolve(path)
	if err != nil {
		return nil, err
	}

	report := &CheckReport{ConfigPath: resolved}

	snap, err := config.Load(resolved)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, nil
	}
	report.BackendCount = len(snap.Backends)

	if err := snap.Validate(); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	if snap.BindAddr == "0.0.0.0" {
		report.Warnings = append(report.Warnings, "bind_address is 0.0.0.0 (listens on all interfaces)")
	}

	return report, nil
}
