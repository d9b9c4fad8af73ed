package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of RepositoryService
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetInfo(ctx context.Context, repoURL string) (RepoInfo, error) {
	args := m.Called(ctx, repoURL)
	return args.Get(0).(RepoInfo), args.Error(1)
}

func (m *MockRepository) Clone(ctx context.Context, repoURL string) (string, error) {
	args := m.Called(ctx, repoURL)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) CreateBranch(ctx context.Context, localPath, branch string) error {
	return m.Called(ctx, localPath, branch).Error(0)
}

func (m *MockRepository) Exists(ctx context.Context, localPath, relPath string) (bool, error) {
	args := m.Called(ctx, localPath, relPath)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteFolder(ctx context.Context, localPath, relPath string) error {
	return m.Called(ctx, localPath, relPath).Error(0)
}

func (m *MockRepository) ListFiles(ctx context.Context, localPath string) ([]string, error) {
	args := m.Called(ctx, localPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) ReadFile(ctx context.Context, localPath, relPath string) (string, error) {
	args := m.Called(ctx, localPath, relPath)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) WriteFile(ctx context.Context, localPath, relPath, content string) error {
	return m.Called(ctx, localPath, relPath, content).Error(0)
}

func (m *MockRepository) CommitAndPush(ctx context.Context, localPath, message string) (string, error) {
	args := m.Called(ctx, localPath, message)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) GetRunResult(ctx context.Context, repoURL, commitID string) (RunResult, error) {
	args := m.Called(ctx, repoURL, commitID)
	return args.Get(0).(RunResult), args.Error(1)
}

func (m *MockRepository) OpenMergeRequest(ctx context.Context, repoURL string, req MergeRequest) (string, error) {
	args := m.Called(ctx, repoURL, req)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) DeleteLocalClone(ctx context.Context, localPath string) error {
	return m.Called(ctx, localPath).Error(0)
}

// MockGeneration is a mock implementation of GenerationService
type MockGeneration struct {
	mock.Mock
}

func (m *MockGeneration) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(GenerationResult), args.Error(1)
}

func (m *MockGeneration) SelectFiles(ctx context.Context, req FileSelectionRequest) ([]RequiredFile, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RequiredFile), args.Error(1)
}

func (m *MockGeneration) Summarize(ctx context.Context, file RequiredFile) (string, error) {
	args := m.Called(ctx, file)
	return args.String(0), args.Error(1)
}

func (m *MockGeneration) BestPractices(ctx context.Context, language string, count int) (string, error) {
	args := m.Called(ctx, language, count)
	return args.String(0), args.Error(1)
}

func (m *MockGeneration) Explain(ctx context.Context, req ExplanationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockValidation is a mock implementation of ValidationService
type MockValidation struct {
	mock.Mock
}

func (m *MockValidation) RunCheck(ctx context.Context, name, localPath string) (CheckOutput, error) {
	args := m.Called(ctx, name, localPath)
	return args.Get(0).(CheckOutput), args.Error(1)
}

// MockRetrieval is a mock implementation of RetrievalService
type MockRetrieval struct {
	mock.Mock
}

func (m *MockRetrieval) Lookup(ctx context.Context, localPath, query string) (string, error) {
	args := m.Called(ctx, localPath, query)
	return args.String(0), args.Error(1)
}
