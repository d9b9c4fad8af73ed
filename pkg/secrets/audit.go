package secrets

import "time"

// AuditLog records what a redaction removed. It never holds secret values.
type AuditLog struct {
	Timestamp  time.Time   `json:"timestamp"`
	Redactions []Redaction `json:"redactions"`
	Summary    Summary     `json:"summary"`
}

// Redaction describes one removed secret.
type Redaction struct {
	RuleID      string `json:"rule_id"`
	RuleDesc    string `json:"rule_desc"`
	File        string `json:"file,omitempty"`
	LineNumber  int    `json:"line_number"`
	Column      int    `json:"column"`
	OriginalLen int    `json:"original_len"`
	Preview     string `json:"preview"`
}

// Summary aggregates an AuditLog.
type Summary struct {
	TotalSecrets     int            `json:"total_secrets"`
	UniqueRules      int            `json:"unique_rules"`
	RuleCounts       map[string]int `json:"rule_counts"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// HasRedactions reports whether anything was redacted.
func (a *AuditLog) HasRedactions() bool {
	return len(a.Redactions) > 0
}
