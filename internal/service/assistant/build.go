package assistant

import (
	"testcasegpt/internal/config"
	"testcasegpt/internal/prompt"
	"testcasegpt/internal/summary"
)

// NewFromConfig builds a Service sized by cfg. runner may be nil.
func NewFromConfig(cfg *config.Config, gateway Completer, runner Runner) *Service {
	return NewService(Options{
		Summarizer: summary.New(cfg.BasicConfig.SummaryCacheSize),
		Prompts:    prompt.NewBuilder(cfg.BasicConfig.MaxPromptContextBytes),
		Gateway:    gateway,
		Runner:     runner,
	})
}
