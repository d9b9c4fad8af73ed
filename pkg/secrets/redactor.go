package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// previewLen is how much of a secret a marker reveals.
const previewLen = 4

// RedactResult is redacted content plus what was removed.
type RedactResult struct {
	Content string
	Audit   AuditLog
}

// Redactor replaces secrets with [REDACTED:rule-id:preview] markers.
type Redactor struct {
	detector *Detector
}

// NewRedactor creates a Redactor honoring allowlist, which may be nil.
func NewRedactor(allowlist *Allowlist) (*Redactor, error) {
	d, err := NewDetector(allowlist)
	if err != nil {
		return nil, err
	}
	return &Redactor{detector: d}, nil
}

// Redact returns content with every finding replaced by a marker.
func (r *Redactor) Redact(content string) (RedactResult, error) {
	start := time.Now()
	findings, err := r.detector.Scan(content)
	if err != nil {
		return RedactResult{}, fmt.Errorf("detecting secrets: %w", err)
	}

	audit := buildAuditLog(findings, time.Since(start))
	if len(findings) == 0 {
		return RedactResult{Content: content, Audit: audit}, nil
	}
	return RedactResult{Content: replaceFindings(content, findings), Audit: audit}, nil
}

// Marker is the text that stands in for f.
func Marker(f Finding) string {
	return fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, extractPreview(f.Match, previewLen))
}

// replaceFindings works from the last finding backwards so earlier columns
// stay valid. Findings whose position does not hold the secret are replaced
// wherever the secret occurs.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line > sorted[j].Line
		}
		return sorted[i].StartCol > sorted[j].StartCol
	})

	lines := strings.Split(content, "\n")
	var leftover []Finding
	for _, f := range sorted {
		if f.Match == "" {
			continue
		}
		if f.Line < 1 || f.Line > len(lines) || !strings.Contains(lines[f.Line-1], f.Match) {
			leftover = append(leftover, f)
			continue
		}
		line := lines[f.Line-1]
		start, end := f.StartCol, f.EndCol+1
		if start >= 0 && start < end && end <= len(line) && strings.Contains(line[start:end], f.Match) {
			lines[f.Line-1] = line[:start] + strings.Replace(line[start:end], f.Match, Marker(f), 1) + line[end:]
			continue
		}
		lines[f.Line-1] = strings.ReplaceAll(line, f.Match, Marker(f))
	}

	out := strings.Join(lines, "\n")
	for _, f := range leftover {
		out = strings.ReplaceAll(out, f.Match, Marker(f))
	}
	return out
}

func extractPreview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildAuditLog(findings []Finding, elapsed time.Duration) AuditLog {
	redactions := make([]Redaction, 0, len(findings))
	counts := make(map[string]int)
	for _, f := range findings {
		redactions = append(redactions, Redaction{
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			File:        f.File,
			LineNumber:  f.Line,
			Column:      f.StartCol,
			OriginalLen: len(f.Match),
			Preview:     extractPreview(f.Match, previewLen),
		})
		counts[f.RuleID]++
	}

	return AuditLog{
		Timestamp:  time.Now(),
		Redactions: redactions,
		Summary: Summary{
			TotalSecrets:     len(findings),
			UniqueRules:      len(counts),
			RuleCounts:       counts,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
	}
}
