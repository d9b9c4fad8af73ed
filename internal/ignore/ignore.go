// Package ignore decides which repository files are left out of listings,
// using gitignore syntax matched with doublestar globs.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Defaults are always applied before a repository's own .gitignore:
// version control data, dependency caches and build output.
var Defaults = []string{
	".git/",
	"node_modules/",
	"vendor/",
	".venv/",
	"venv/",
	"__pycache__/",
	".idea/",
	".vscode/",
	".cache/",
	".next/",
	"target/",
}

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// Matcher holds gitignore rules in file order. The last rule that matches a
// path decides, so "!keep.log" after "*.log" re-includes keep.log.
type Matcher struct {
	rules   []rule
	invalid []string
}

// Parse builds a Matcher from gitignore lines. Lines that are not valid
// patterns are skipped, as git does, and reported by Invalid.
func Parse(lines []string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		r, ok := parseLine(line)
		if !ok {
			continue
		}
		if !doublestar.ValidatePattern(r.glob) {
			m.invalid = append(m.invalid, line)
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m
}

// Load combines Defaults with root/.gitignore, which may be absent.
func Load(root string) (*Matcher, error) {
	lines := append([]string(nil), Defaults...)

	f, err := os.Open(filepath.Join(root, ".gitignore"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("opening .gitignore: %w", err)
	default:
		defer f.Close()
		own, err := readLines(f)
		if err != nil {
			return nil, fmt.Errorf("reading .gitignore: %w", err)
		}
		lines = append(lines, own...)
	}
	return Parse(lines), nil
}

// Match reports whether the file at rel, a path relative to the repository
// root, is ignored. A file inside an ignored directory is ignored.
func (m *Matcher) Match(rel string) bool {
	return m.match(rel, false)
}

// MatchDir reports whether the directory at rel is ignored, so a walk can
// skip it. Unlike Match, rules ending in a slash apply to rel itself.
func (m *Matcher) MatchDir(rel string) bool {
	return m.match(rel, true)
}

func (m *Matcher) match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Invalid returns the lines Parse skipped because they are not valid
// patterns.
func (m *Matcher) Invalid() []string {
	if m == nil {
		return nil
	}
	return m.invalid
}

func (r rule) matches(rel string, isDir bool) bool {
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if doublestar.MatchUnvalidated(r.glob, dir) {
			return true
		}
	}
	if r.dirOnly && !isDir {
		return false
	}
	return doublestar.MatchUnvalidated(r.glob, rel)
}

// parseLine converts one gitignore line. Blank lines and comments yield
// false.
func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var r rule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	} else if strings.HasPrefix(line, `\`) {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if line == "" {
		return rule{}, false
	}

	// A pattern with a slash anywhere but the end is relative to the root;
	// otherwise it matches at any depth.
	if strings.Contains(line, "/") {
		r.glob = strings.TrimPrefix(line, "/")
	} else {
		r.glob = "**/" + line
	}
	return r, true
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
