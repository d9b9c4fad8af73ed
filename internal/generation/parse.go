package generation

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// extractYAML returns the body of the first yaml code block, else of the
// first code block, else the whole reply.
func extractYAML(reply string) string {
	blocks := codeBlocks(reply)
	body := strings.TrimSpace(reply)
	if len(blocks) > 0 {
		body = blocks[0].body
		for _, b := range blocks {
			if b.lang == "yaml" || b.lang == "yml" {
				body = b.body
				break
			}
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return body + "\n"
}

type codeBlock struct {
	lang string
	body string
}

func codeBlocks(s string) []codeBlock {
	var out []codeBlock
	lines := strings.Split(s, "\n")
	for i := 0; i < len(lines); i++ {
		open := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(open, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(open, "```")))
		var body []string
		closed := false
		for i++; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "```" {
				closed = true
				break
			}
			body = append(body, lines[i])
		}
		// An unterminated block still carries the answer.
		out = append(out, codeBlock{lang: lang, body: strings.Join(body, "\n")})
		if !closed {
			break
		}
	}
	return out
}

type selection struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// parseSelection reads the model's file choice. It accepts a JSON array
// (optionally fenced) or one path per line, keeps only paths present in
// tree, drops duplicates and stops at limit when limit > 0.
func parseSelection(reply string, tree []string, limit int) []orchestrator.RequiredFile {
	known := make(map[string]bool, len(tree))
	for _, p := range tree {
		known[p] = true
	}

	picks := parseJSONSelection(reply)
	if picks == nil {
		picks = parseLineSelection(reply)
	}

	var out []orchestrator.RequiredFile
	seen := make(map[string]bool)
	for _, p := range picks {
		clean := strings.TrimPrefix(strings.TrimSpace(p.Path), "./")
		if !known[clean] || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, orchestrator.RequiredFile{
			Name:        path.Base(clean),
			Path:        clean,
			Description: strings.TrimSpace(p.Description),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func parseJSONSelection(reply string) []selection {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil
	}
	raw := reply[start : end+1]

	var picks []selection
	if err := json.Unmarshal([]byte(raw), &picks); err == nil {
		return picks
	}
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err == nil {
		picks = make([]selection, len(paths))
		for i, p := range paths {
			picks[i] = selection{Path: p}
		}
		return picks
	}
	return nil
}

func parseLineSelection(reply string) []selection {
	var picks []selection
	for _, line := range strings.Split(reply, "\n") {
		line = stripListMarker(strings.TrimSpace(line))
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		p, desc, _ := strings.Cut(line, " - ")
		picks = append(picks, selection{Path: strings.Trim(p, "`"), Description: desc})
	}
	return picks
}

// stripListMarker removes a leading "- ", "* " or "12. " marker.
func stripListMarker(line string) string {
	for _, m := range []string{"- ", "* "} {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(line[len(m):])
		}
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:])
	}
	return line
}

// parseCategory reads a "category: reason" answer.
func parseCategory(reply string) (orchestrator.Category, string, bool) {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	label, reason, _ := strings.Cut(line, ":")
	label = strings.Trim(strings.ToLower(strings.TrimSpace(label)), "`'\"*")

	var c orchestrator.Category
	switch label {
	case "yml_error", "yml", "yaml_error":
		c = orchestrator.CategoryConfig
	case "project_error", "project":
		c = orchestrator.CategoryProject
	case "unknown_error", "unknown":
		c = orchestrator.CategoryUnknown
	default:
		return "", "", false
	}
	return c, strings.TrimSpace(reason), true
}
