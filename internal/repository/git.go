package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// Clone clones repoURL into a fresh directory under the work directory and
// returns its path. A leftover directory for the same run is replaced.
func (s *Service) Clone(ctx context.Context, repoURL string) (string, error) {
	id := logging.RunIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	dir := filepath.Join(s.workDir, filepath.Base(id))

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear clone dir: %w", err)
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        repoURL,
		RemoteName: s.git.Remote,
		Auth:       s.auth(repoURL),
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("clone %s: %w", redactURL(repoURL), err)
	}

	s.logger.Debug(ctx, "cloned repository", zap.String("path", dir))
	return dir, nil
}

// CreateBranch creates branch at HEAD and checks it out.
func (s *Service) CreateBranch(ctx context.Context, localPath, branch string) error {
	if branch == "" {
		return errors.New("branch name cannot be empty")
	}
	repo, wt, err := open(localPath)
	if err != nil {
		return err
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	err = wt.Checkout(&git.CheckoutOptions{
		Hash:   head.Hash(),
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	if err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// CommitAndPush stages every change, commits it and pushes the current
// branch. The push overwrites the remote branch, which belongs to the run.
// A clean tree pushes HEAD and returns its hash.
func (s *Service) CommitAndPush(ctx context.Context, localPath, message string) (string, error) {
	repo, wt, err := open(localPath)
	if err != nil {
		return "", err
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("worktree status: %w", err)
	}

	staged := 0
	for path, st := range status {
		if st.Worktree == git.Unmodified {
			continue
		}
		if st.Worktree == git.Deleted {
			_, err = wt.Remove(path)
		} else {
			_, err = wt.Add(path)
		}
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", path, err)
		}
		staged++
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	hash := head.Hash()

	if staged > 0 {
		who := &object.Signature{Name: s.git.AuthorName, Email: s.git.AuthorEmail, When: time.Now()}
		hash, err = wt.Commit(message, &git.CommitOptions{Author: who, Committer: who})
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}

	if err := s.push(ctx, repo, head.Name()); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "pushed changes",
		zap.String("branch", head.Name().Short()),
		zap.String("commit", hash.String()),
		zap.Int("files", staged),
	)
	return hash.String(), nil
}

func (s *Service) push(ctx context.Context, repo *git.Repository, ref plumbing.ReferenceName) error {
	if !ref.IsBranch() {
		return fmt.Errorf("cannot push detached HEAD %s", ref)
	}
	remote, err := repo.Remote(s.git.Remote)
	if err != nil {
		return fmt.Errorf("remote %s: %w", s.git.Remote, err)
	}

	var auth transport.AuthMethod
	if urls := remote.Config().URLs; len(urls) > 0 {
		auth = s.auth(urls[0])
	}

	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", ref, ref))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: s.git.Remote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", ref.Short(), err)
	}
	return nil
}

// DeleteLocalClone removes a working copy created by Clone.
func (s *Service) DeleteLocalClone(ctx context.Context, localPath string) error {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(s.workDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("refusing to delete %s outside work dir", localPath)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("delete clone: %w", err)
	}
	s.logger.Debug(ctx, "deleted working copy", zap.String("path", abs))
	return nil
}

// auth returns token basic auth for HTTP(S) remotes only.
func (s *Service) auth(remoteURL string) transport.AuthMethod {
	if !s.token.IsSet() {
		return nil
	}
	if !strings.HasPrefix(remoteURL, "https://") && !strings.HasPrefix(remoteURL, "http://") {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: s.token.Value()}
}

func open(localPath string) (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("worktree: %w", err)
	}
	return repo, wt, nil
}

// redactURL strips credentials from a URL for error messages.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
