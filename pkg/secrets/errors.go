// Package secrets finds and redacts credentials using the Gitleaks rule set.
//
// It backs the secret scan check run against generated workflows and the
// redaction of CI logs before they are shown to a model or written to a pull
// request.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
