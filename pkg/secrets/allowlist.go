package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// RepoAllowlistFile is the allowlist read from the root of a working copy.
const RepoAllowlistFile = ".gitleaks.toml"

// Allowlist holds patterns excluded from detection.
type Allowlist struct {
	Paths   []string // file path regexes
	Regexes []string // content regexes
}

// Empty reports whether the allowlist excludes nothing.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.Paths) == 0 && len(a.Regexes) == 0)
}

// LoadAllowlists merges the repository allowlist found in repoPath with the
// operator allowlist at userPath. Either may be empty. Missing files are
// skipped; unparseable files and bad patterns are errors.
func LoadAllowlists(repoPath, userPath string) (*Allowlist, error) {
	merged := &Allowlist{}

	var files []string
	if repoPath != "" {
		files = append(files, filepath.Join(repoPath, RepoAllowlistFile))
	}
	if userPath != "" {
		files = append(files, userPath)
	}

	for _, f := range files {
		a, err := loadTOML(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Paths = append(merged.Paths, a.Paths...)
		merged.Regexes = append(merged.Regexes, a.Regexes...)
	}
	return merged, nil
}

func loadTOML(path string) (*Allowlist, error) {
	var doc struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, p := range doc.Allowlist.Paths {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: path pattern %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}
	for _, p := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: content pattern %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}

	return &Allowlist{Paths: doc.Allowlist.Paths, Regexes: doc.Allowlist.Regexes}, nil
}
