// Package generation implements orchestrator.GenerationService on top of
// langchaingo chat models.
//
// NewModel builds an OpenAI, Anthropic or Google AI model from
// config.LLMConfig. Service renders prompt templates for workflow drafting,
// revision after failed checks or CI runs, required-file selection, file
// reduction, language guidance and the final pull request explanation.
// ModelClassifier asks the same model to categorize CI failures and falls
// back to orchestrator.RuleClassifier when the answer is unusable.
package generation
