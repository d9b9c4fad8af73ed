package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/cigen/internal/ignore"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/cigen/internal/retrieval")

// DocPatterns select the files indexed from a working copy.
var DocPatterns = []string{
	"**/README*",
	"**/CONTRIBUTING*",
	"**/HACKING*",
	"**/BUILDING*",
	"**/INSTALL*",
	"**/DEVELOPMENT*",
	"doc/**/*.{md,rst,txt}",
	"docs/**/*.{md,rst,txt}",
	"**/Makefile",
	"**/Dockerfile",
	"**/Taskfile.{yml,yaml}",
	"**/justfile",
}

const (
	defaultResults   = 4
	defaultChunkSize = 1500
	maxDocSize       = 256 << 10
	embedBatch       = 64
)

// ErrNoEmbedder is returned by New without an embedder.
var ErrNoEmbedder = errors.New("retrieval: embedder is required")

// Embedder turns text into vectors. *embeddings.Service implements it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ orchestrator.RetrievalService = (*Service)(nil)

// Service implements orchestrator.RetrievalService over chromem-go.
type Service struct {
	db        *chromem.DB
	embedder  Embedder
	results   int
	chunkSize int
	patterns  []string
	logger    *logging.Logger

	indexing singleflight.Group
	mu       sync.Mutex
	indexed  map[string]*chromem.Collection
}

// Option configures a Service.
type Option func(*Service)

// WithResults sets how many chunks Lookup returns.
func WithResults(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.results = n
		}
	}
}

// WithChunkSize sets the maximum chunk length in bytes.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithPatterns replaces DocPatterns.
func WithPatterns(patterns ...string) Option {
	return func(s *Service) { s.patterns = patterns }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service with an empty in-memory database.
func New(embedder Embedder, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	s := &Service{
		db:        chromem.NewDB(),
		embedder:  embedder,
		results:   defaultResults,
		chunkSize: defaultChunkSize,
		patterns:  DocPatterns,
		indexed:   make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	for _, p := range s.patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("retrieval: invalid pattern %q", p)
		}
	}
	return s, nil
}

// Lookup returns the documentation chunks of localPath closest to query.
// The working copy is indexed on first use. A repository without
// documentation yields an empty answer.
func (s *Service) Lookup(ctx context.Context, localPath, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Lookup")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return "", errors.New("retrieval: query cannot be empty")
	}

	col, err := s.collection(ctx, localPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	count := col.Count()
	span.SetAttributes(attribute.Int("documents", count))
	if count == 0 {
		return "", nil
	}
	k := min(s.results, count)

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("query index: %w", err)
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("From %s:\n%s", r.Metadata["path"], r.Content)
	}

	s.logger.Debug(ctx, "retrieval lookup",
		zap.Int("documents", count),
		zap.Int("results", len(results)),
	)
	return strings.Join(parts, "\n\n"), nil
}

// Index (re)builds the index for localPath and returns the number of chunks.
func (s *Service) Index(ctx context.Context, localPath string) (int, error) {
	s.Forget(localPath)
	col, err := s.collection(ctx, localPath)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Forget drops the index for localPath.
func (s *Service) Forget(localPath string) {
	key := collectionName(localPath)
	s.mu.Lock()
	_, ok := s.indexed[key]
	delete(s.indexed, key)
	s.mu.Unlock()
	if ok {
		_ = s.db.DeleteCollection(key)
	}
}

func (s *Service) collection(ctx context.Context, localPath string) (*chromem.Collection, error) {
	key := collectionName(localPath)
	s.mu.Lock()
	col, ok := s.indexed[key]
	s.mu.Unlock()
	if ok {
		return col, nil
	}

	v, err, _ := s.indexing.Do(key, func() (any, error) {
		col, err := s.build(ctx, key, localPath)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.indexed[key] = col
		s.mu.Unlock()
		return col, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chromem.Collection), nil
}

func (s *Service) build(ctx context.Context, name, localPath string) (*chromem.Collection, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Index")
	defer span.End()

	files, err := s.docFiles(ctx, localPath)
	if err != nil {
		return nil, err
	}

	var docs []chromem.Document
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(localPath, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		if !utf8.Valid(data) {
			continue
		}
		for i, chunk := range chunkText(string(data), s.chunkSize) {
			docs = append(docs, chromem.Document{
				ID:       fmt.Sprintf("%s#%d", rel, i),
				Content:  chunk,
				Metadata: map[string]string{"path": rel},
			})
		}
	}

	if err := s.embed(ctx, docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embedQuery)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if len(docs) > 0 {
		// Embeddings are precomputed, so one worker suffices.
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("add documents: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("files", len(files)), attribute.Int("chunks", len(docs)))
	s.logger.Info(ctx, "indexed repository documentation",
		zap.Int("files", len(files)),
		zap.Int("chunks", len(docs)),
	)
	return col, nil
}

func (s *Service) embed(ctx context.Context, docs []chromem.Document) error {
	for start := 0; start < len(docs); start += embedBatch {
		end := min(start+embedBatch, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed documents: got %d vectors for %d texts", len(vectors), len(texts))
		}
		for i, v := range vectors {
			docs[start+i].Embedding = v
		}
	}
	return nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.EmbedQuery(ctx, text)
}

// docFiles returns the documentation files under localPath that are not
// ignored, relative and sorted.
func (s *Service) docFiles(ctx context.Context, localPath string) ([]string, error) {
	matcher, err := ignore.Load(localPath)
	if err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}
	if bad := matcher.Invalid(); len(bad) > 0 {
		s.logger.Warn(ctx, "skipping invalid .gitignore patterns", zap.Strings("patterns", bad))
	}

	fsys := os.DirFS(localPath)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range s.patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] || matcher.Match(rel) {
				continue
			}
			info, err := os.Stat(filepath.Join(localPath, filepath.FromSlash(rel)))
			if err != nil || info.Size() > maxDocSize {
				continue
			}
			seen[rel] = true
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

func collectionName(localPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(localPath)))
	return "repo-" + hex.EncodeToString(sum[:8])
}
