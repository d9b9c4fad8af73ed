package secrets

import (
	"fmt"
	"regexp"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding is one detected secret.
type Finding struct {
	RuleID   string // Gitleaks rule ID, e.g. "github-pat"
	RuleDesc string
	File     string // set by ScanFile
	Line     int    // 1-based
	StartCol int
	EndCol   int
	Match    string // the secret itself; never log it
}

// Detector scans text with the default Gitleaks rules minus an allowlist.
type Detector struct {
	allowlist *Allowlist
	paths     []*regexp.Regexp
	content   []*regexp.Regexp
}

// NewDetector compiles allowlist, which may be nil.
func NewDetector(allowlist *Allowlist) (*Detector, error) {
	d := &Detector{allowlist: allowlist}
	if allowlist == nil {
		return d, nil
	}
	for _, p := range allowlist.Paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		d.paths = append(d.paths, re)
	}
	for _, p := range allowlist.Regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		d.content = append(d.content, re)
	}
	return d, nil
}

// Scan returns the secrets found in content.
func (d *Detector) Scan(content string) ([]Finding, error) {
	// Gitleaks detectors accumulate findings, so each scan gets its own.
	gl, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks config: %w", err)
	}
	if len(d.content) > 0 {
		gl.Config.Allowlists = append(gl.Config.Allowlists, d.gitleaksAllowlist())
	}

	found := gl.DetectString(content)
	out := make([]Finding, 0, len(found))
	for _, f := range found {
		out = append(out, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			StartCol: f.StartColumn,
			EndCol:   f.EndColumn,
			Match:    f.Secret,
		})
	}
	return out, nil
}

// ScanFile scans content read from path. Allowlisted paths yield nothing.
func (d *Detector) ScanFile(path, content string) ([]Finding, error) {
	for _, re := range d.paths {
		if re.MatchString(path) {
			return nil, nil
		}
	}
	found, err := d.Scan(content)
	for i := range found {
		found[i].File = path
	}
	return found, err
}

func (d *Detector) gitleaksAllowlist() *gitleaksConfig.Allowlist {
	al := &gitleaksConfig.Allowlist{Description: "cigen allowlist"}
	for _, re := range d.content {
		al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	al.StopWords = append(al.StopWords, d.allowlist.Regexes...)
	return al
}

// Detect scans content once with a throwaway Detector.
func Detect(content string, allowlist *Allowlist) ([]Finding, error) {
	d, err := NewDetector(allowlist)
	if err != nil {
		return nil, err
	}
	return d.Scan(content)
}
