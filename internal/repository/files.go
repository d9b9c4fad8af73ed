package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/ignore"
)

var (
	// ErrPathEscape is returned for relative paths that leave the working copy.
	ErrPathEscape = errors.New("path escapes working copy")

	// ErrBinaryFile is returned by ReadFile for content that is not UTF-8.
	ErrBinaryFile = errors.New("binary file")

	// ErrFileTooLarge is returned by ReadFile for files over 1MB.
	ErrFileTooLarge = errors.New("file too large")
)

// resolve joins rel onto localPath, rejecting escapes and the root itself.
func resolve(localPath, rel string) (string, error) {
	if localPath == "" {
		return "", errors.New("working copy path cannot be empty")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	return filepath.Join(localPath, clean), nil
}

// Exists reports whether rel exists in the working copy.
func (s *Service) Exists(_ context.Context, localPath, rel string) (bool, error) {
	path, err := resolve(localPath, rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", rel, err)
}

// DeleteFolder removes rel and everything below it.
func (s *Service) DeleteFolder(_ context.Context, localPath, rel string) error {
	path, err := resolve(localPath, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// ListFiles returns slash-separated paths of every file in the working copy,
// in lexical order, skipping .git, dependency and build directories and
// anything matched by the repository's .gitignore.
func (s *Service) ListFiles(ctx context.Context, localPath string) ([]string, error) {
	matcher, err := ignore.Load(localPath)
	if err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}
	if bad := matcher.Invalid(); len(bad) > 0 {
		s.logger.Warn(ctx, "skipping invalid .gitignore patterns", zap.Strings("patterns", bad))
	}

	var files []string
	err = filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" || matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", localPath, err)
	}
	return files, nil
}

// ReadFile returns the content of a UTF-8 text file of at most 1MB.
func (s *Service) ReadFile(_ context.Context, localPath, rel string) (string, error) {
	path, err := resolve(localPath, rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", rel)
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, rel, info.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s", ErrBinaryFile, rel)
	}
	return string(content), nil
}

// WriteFile writes content to rel, creating parent directories.
func (s *Service) WriteFile(_ context.Context, localPath, rel, content string) error {
	path, err := resolve(localPath, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
