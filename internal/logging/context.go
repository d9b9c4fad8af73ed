package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Repository identifies the repository a run evaluates.
type Repository struct {
	Owner string
	Name  string
}

type (
	runKey  struct{}
	repoKey struct{}
)

var (
	runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	// GitHub owner and repository names.
	repoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// WithRunID tags ctx with a run ID. It panics on an empty ID or one with
// characters outside [A-Za-z0-9_-]; run IDs are generated, never user input.
func WithRunID(ctx context.Context, runID string) context.Context {
	if !runIDPattern.MatchString(runID) {
		panic(fmt.Sprintf("logging: invalid run id %q", runID))
	}
	return context.WithValue(ctx, runKey{}, runID)
}

// RunIDFromContext returns the run ID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

// WithRepository tags ctx with the repository under evaluation. Owner and
// name come from user-supplied URLs, so bad values are an error.
func WithRepository(ctx context.Context, owner, name string) (context.Context, error) {
	for field, v := range map[string]string{"repo.owner": owner, "repo.name": name} {
		if !repoPattern.MatchString(v) {
			return ctx, fmt.Errorf("invalid %s %q", field, v)
		}
	}
	return context.WithValue(ctx, repoKey{}, Repository{Owner: owner, Name: name}), nil
}

// RepositoryFromContext returns the tagged repository.
func RepositoryFromContext(ctx context.Context) (Repository, bool) {
	r, ok := ctx.Value(repoKey{}).(Repository)
	return r, ok
}

// ContextFields returns the correlation fields carried by ctx: the active
// span, the run ID and the repository.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if r, ok := RepositoryFromContext(ctx); ok {
		fields = append(fields, zap.String("repo.owner", r.Owner), zap.String("repo.name", r.Name))
	}
	return fields
}
