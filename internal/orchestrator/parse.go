package orchestrator

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

type parseNode struct {
	repo      RepositoryService
	gen       GenerationService
	retrieval RetrievalService
	now       func() time.Time
}

func (n *parseNode) Tag() NodeTag { return NodeParse }

func (n *parseNode) Run(ctx context.Context, s State) (Update, error) {
	u := visit(NodeParse)

	info, err := n.repo.GetInfo(ctx, s.RepoURL)
	if err != nil {
		return abort(u, StatusRepoInfoFailed, err), nil
	}
	u.Repo = &info
	u.Language = ptr(info.Language)

	localPath, err := n.repo.Clone(ctx, s.RepoURL)
	if err != nil {
		return abort(u, StatusCloneFailed, err), nil
	}
	u.LocalPath = &localPath

	if err := n.repo.CreateBranch(ctx, localPath, s.WorkBranch); err != nil {
		return abort(u, StatusBranchFailed, err), nil
	}

	exists, err := n.repo.Exists(ctx, localPath, WorkflowsDir)
	if err != nil {
		return abort(u, StatusDeleteWorkflowsFailed, err), nil
	}
	if exists {
		if err := n.repo.DeleteFolder(ctx, localPath, WorkflowsDir); err != nil {
			return abort(u, StatusDeleteWorkflowsFailed, err), nil
		}
		msg := fmt.Sprintf("cigen: remove existing workflows (%s)", n.now().UTC().Format(time.RFC3339))
		if _, err := n.repo.CommitAndPush(ctx, localPath, msg); err != nil {
			return abort(u, StatusPushFailed, err), nil
		}
	}

	tree, err := n.repo.ListFiles(ctx, localPath)
	if err != nil {
		return abort(u, StatusFileTreeFailed, err), nil
	}
	u.FileTree = &tree

	if s.Options.SelectRequiredFiles && s.MaxRequiredFiles > 0 {
		files, notes, status, err := n.requiredFiles(ctx, s, info, localPath, tree)
		if err != nil {
			return abort(u, status, err), nil
		}
		u.RequiredFiles = &files
		u.Errors = append(u.Errors, notes...)
	}

	if s.Options.BestPractices && info.Language != "" {
		count := s.Options.BestPracticeCount
		if count <= 0 {
			count = 10
		}
		guidance, err := n.gen.BestPractices(ctx, info.Language, count)
		if err != nil {
			u.Errors = append(u.Errors, fmt.Sprintf("best practices: %v", err))
		} else {
			u.Guidance = &guidance
		}
	}

	if s.Options.UseRetrieval && n.retrieval != nil {
		query := fmt.Sprintf("How is %s built, tested and linted? List the exact commands and required tool versions.", info.Name)
		guide, err := n.retrieval.Lookup(ctx, localPath, query)
		if err != nil {
			u.Errors = append(u.Errors, fmt.Sprintf("retrieval: %v", err))
		} else {
			u.BuildGuide = &guide
		}
	}

	return u, nil
}

// requiredFiles selects, reads and optionally reduces files relevant to CI.
// On failure it returns the infrastructure status to abort with. Notes are
// non-fatal problems worth recording.
func (n *parseNode) requiredFiles(ctx context.Context, s State, info RepoInfo, localPath string, tree []string) (files []RequiredFile, notes []string, status string, err error) {
	selected, err := n.gen.SelectFiles(ctx, FileSelectionRequest{
		Repo:     info,
		Language: info.Language,
		FileTree: tree,
		Max:      s.MaxRequiredFiles,
	})
	if err != nil {
		return nil, nil, StatusSelectFilesFailed, err
	}

	known := make(map[string]bool, len(tree))
	for _, p := range tree {
		known[p] = true
	}

	files = make([]RequiredFile, 0, min(len(selected), s.MaxRequiredFiles))
	var dropped []string
	for _, f := range selected {
		if len(files) == s.MaxRequiredFiles {
			break
		}
		f.Path = strings.TrimPrefix(path.Clean(f.Path), "/")
		if strings.HasPrefix(f.Path, ".github/") || !known[f.Path] {
			dropped = append(dropped, f.Path)
			continue
		}
		if f.Name == "" {
			f.Name = path.Base(f.Path)
		}

		content, err := n.repo.ReadFile(ctx, localPath, f.Path)
		if err != nil {
			return nil, nil, StatusReadFilesFailed, fmt.Errorf("%s: %w", f.Path, err)
		}
		f.Content = content

		if s.Options.ReduceRequiredFiles && content != "" {
			reduced, err := n.gen.Summarize(ctx, f)
			switch {
			case err != nil:
				notes = append(notes, fmt.Sprintf("reduce %s: %v", f.Path, err))
			case len(reduced) < len(content):
				f.Reduced = reduced
			}
		}
		files = append(files, f)
	}

	if len(dropped) > 0 {
		notes = append(notes, fmt.Sprintf("ignored selected files: %s", strings.Join(dropped, ", ")))
	}
	return files, notes, "", nil
}
