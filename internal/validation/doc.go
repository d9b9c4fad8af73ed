// Package validation runs static checks against the workflows in a working
// copy.
//
// Four checks are available:
//
//   - yaml: every workflow parses and has the keys GitHub requires
//   - actionlint: the actionlint linter, read through its JSON output
//   - ghalint: the ghalint security policy linter
//   - secrets: a Gitleaks scan for credentials written into workflows
//
// A check reports CheckFailed with its findings when the workflow is at fault
// and CheckToolError when the checker itself could not produce a verdict.
package validation
