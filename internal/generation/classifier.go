package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// maxClassifyLog bounds the log tail sent for classification.
const maxClassifyLog = 6000

var _ orchestrator.Classifier = (*ModelClassifier)(nil)

// ModelClassifier asks the model to categorize CI run failures.
//
// Validation findings, checker failures and infrastructure failures the rules
// recognize are decided by the fallback without a model call. Answers are
// memoized so identical inputs always classify identically.
type ModelClassifier struct {
	model    llms.Model
	fallback orchestrator.Classifier
	logger   *logging.Logger

	mu   sync.Mutex
	memo map[string]orchestrator.Classification
}

// NewModelClassifier creates a ModelClassifier. A nil fallback selects
// orchestrator.RuleClassifier.
func NewModelClassifier(model llms.Model, fallback orchestrator.Classifier, logger *logging.Logger) *ModelClassifier {
	if fallback == nil {
		fallback = orchestrator.RuleClassifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ModelClassifier{
		model:    model,
		fallback: fallback,
		logger:   logger,
		memo:     make(map[string]orchestrator.Classification),
	}
}

// Classify implements orchestrator.Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, artifact string, d orchestrator.Detail) orchestrator.Classification {
	rule := c.fallback.Classify(ctx, artifact, d)
	if c.model == nil || d.Source != orchestrator.SourceExecution || d.ToolFailed || rule.Category == orchestrator.CategoryTool {
		return rule
	}

	key := memoKey(artifact, d)
	c.mu.Lock()
	if got, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return got
	}
	c.mu.Unlock()

	got, ok := c.ask(ctx, artifact, d)
	if !ok {
		return rule
	}

	c.mu.Lock()
	c.memo[key] = got
	c.mu.Unlock()
	return got
}

func (c *ModelClassifier) ask(ctx context.Context, artifact string, d orchestrator.Detail) (orchestrator.Classification, bool) {
	prompt, err := classifyPrompt.Format(map[string]any{
		"workflow":   strings.TrimSpace(artifact),
		"conclusion": orDefault(d.Conclusion, "failure"),
		"log":        truncateHead(orDefault(d.Output, "(no log)"), maxClassifyLog),
	})
	if err != nil {
		return orchestrator.Classification{}, false
	}

	resp, err := c.model.GenerateContent(ctx,
		[]llms.MessageContent{
			textMessage(llms.ChatMessageTypeSystem, SystemPrompt),
			textMessage(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithTemperature(0),
		llms.WithMaxTokens(200),
	)
	if err != nil || resp == nil || len(resp.Choices) == 0 {
		c.logger.Warn(ctx, "model classification failed, using rules", zap.Error(err))
		return orchestrator.Classification{}, false
	}

	category, reason, ok := parseCategory(resp.Choices[0].Content)
	if !ok {
		c.logger.Warn(ctx, "unrecognized classification, using rules",
			zap.String("reply", truncateHead(resp.Choices[0].Content, 200)),
		)
		return orchestrator.Classification{}, false
	}
	if reason == "" {
		reason = "classified by model"
	}
	return orchestrator.Classification{Category: category, Reason: reason}, true
}

func memoKey(artifact string, d orchestrator.Detail) string {
	h := sha256.New()
	for _, part := range []string{artifact, string(d.Source), d.Check, d.Conclusion, d.Output} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
