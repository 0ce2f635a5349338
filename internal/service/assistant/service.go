// Package assistant composes the summarizer, context store, prompt builder,
// gateway and fallback into the operations every entry point exposes.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"testcasegpt/internal/contextstore"
	"testcasegpt/internal/metrics"
	"testcasegpt/internal/models"
	"testcasegpt/internal/prompt"
	"testcasegpt/internal/service/ai"
	"testcasegpt/internal/service/fallback"
	"testcasegpt/internal/summary"
	"testcasegpt/internal/worker"
)

var (
	ErrEmptyContext = errors.New("no spreadsheet data has been loaded")
	ErrValidation   = errors.New("invalid request")
)

// Completer is the gateway surface the service needs.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
	Provider() string
	Model() string
	Configured() bool
}

// Runner executes blocking gateway calls, typically on a worker pool.
type Runner interface {
	Submit(ctx context.Context, jobType worker.JobType, run func(context.Context) (string, error)) (string, error)
}

// Source tells where a chat-to-SQL answer came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Upload is one file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// Status is the health snapshot reported to clients.
type Status struct {
	Provider     string
	Model        string
	ContextItems int
}

func (s Status) Configured() bool {
	return s.Provider != "" && s.Provider != "none"
}

type Options struct {
	Summarizer *summary.Summarizer
	Store      *contextstore.Store
	Prompts    *prompt.Builder
	Gateway    Completer
	Fallback   *fallback.Responder
	Runner     Runner // optional, calls run inline when nil
}

type Service struct {
	summarizer *summary.Summarizer
	store      *contextstore.Store
	prompts    *prompt.Builder
	gateway    Completer
	fallback   *fallback.Responder
	runner     Runner
}

func NewService(opts Options) *Service {
	s := &Service{
		summarizer: opts.Summarizer,
		store:      opts.Store,
		prompts:    opts.Prompts,
		gateway:    opts.Gateway,
		fallback:   opts.Fallback,
		runner:     opts.Runner,
	}
	if s.summarizer == nil {
		s.summarizer = summary.New(0)
	}
	if s.store == nil {
		s.store = contextstore.New()
	}
	if s.prompts == nil {
		s.prompts = prompt.NewBuilder(0)
	}
	if s.fallback == nil {
		s.fallback = fallback.New(nil)
	}
	return s
}

func (s *Service) Status() Status {
	st := Status{Provider: "none", ContextItems: s.store.Len()}
	if s.gateway != nil && s.gateway.Configured() {
		st.Provider = s.gateway.Provider()
		st.Model = s.gateway.Model()
	}
	return st
}

// Context returns a snapshot of the loaded summaries.
func (s *Service) Context() []models.TableSummary {
	return s.store.All()
}

// Ingest summarizes every upload and appends the results in upload order.
// Files that fail to decode are appended as error entries.
func (s *Service) Ingest(uploads []Upload) (added, total int) {
	var summaries []models.TableSummary
	for _, u := range uploads {
		summaries = append(summaries, s.summarizer.Summarize(u.Name, u.Data)...)
	}
	added, total = s.store.Append(summaries...)
	metrics.SetContextItems(total)
	log.Printf("context: +%d summaries from %d files, %d total", added, len(uploads), total)
	return added, total
}

// IngestPaths is Ingest for files on disk.
func (s *Service) IngestPaths(paths []string) (added, total int) {
	var summaries []models.TableSummary
	for _, p := range paths {
		summaries = append(summaries, s.summarizer.SummarizeFile(p)...)
	}
	added, total = s.store.Append(summaries...)
	metrics.SetContextItems(total)
	return added, total
}

func (s *Service) snapshot() ([]byte, int, error) {
	items := s.store.All()
	data, err := contextstore.Serialize(items)
	return data, len(items), err
}

// Analyze requests the full test analysis over the whole context.
func (s *Service) Analyze(ctx context.Context) (string, error) {
	data, n, err := s.snapshot()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyContext
	}
	userPrompt, err := s.prompts.Analysis(data)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, worker.Analyze, ai.Request{
		System:      prompt.AnalysisSystem,
		Prompt:      userPrompt,
		MaxTokens:   prompt.AnalysisMaxTokens,
		Temperature: prompt.AnalysisTemperature,
	})
}

// Ask answers a follow-up question grounded in the context.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", ErrValidation)
	}
	data, n, err := s.snapshot()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyContext
	}
	userPrompt, err := s.prompts.FollowUp(data, question)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, worker.FollowUp, ai.Request{
		System:      prompt.FollowUpSystem,
		Prompt:      userPrompt,
		MaxTokens:   prompt.FollowUpMaxTokens,
		Temperature: prompt.FollowUpTemperature,
	})
}

// ChatSQL tries the model first and answers from the keyword fallback on any
// failure or when no data is loaded. Only an empty message is an error.
func (s *Service) ChatSQL(ctx context.Context, message string) (models.SQLSuggestion, Source, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.SQLSuggestion{}, "", fmt.Errorf("%w: message is required", ErrValidation)
	}

	switch {
	case s.gateway == nil || !s.gateway.Configured():
		metrics.ObserveFallback("unconfigured")
		return s.fallback.Respond(message), SourceFallback, nil
	case s.store.Len() == 0:
		metrics.ObserveFallback("empty_context")
		return s.fallback.Respond(message), SourceFallback, nil
	}
	return s.modelSQL(ctx, message)
}

func (s *Service) modelSQL(ctx context.Context, message string) (models.SQLSuggestion, Source, error) {
	fallbackWith := func(reason string, err error) (models.SQLSuggestion, Source, error) {
		log.Printf("chat-sql: answering from fallback (%s): %v", reason, err)
		metrics.ObserveFallback(reason)
		return s.fallback.Respond(message), SourceFallback, nil
	}

	data, _, err := s.snapshot()
	if err != nil {
		return fallbackWith("serialize", err)
	}
	userPrompt, err := s.prompts.ChatSQL(data, message)
	if err != nil {
		return fallbackWith("context_too_large", err)
	}
	text, err := s.complete(ctx, worker.ChatSQL, ai.Request{
		System:      prompt.ChatSQLSystem,
		Prompt:      userPrompt,
		MaxTokens:   prompt.ChatSQLMaxTokens,
		Temperature: prompt.ChatSQLTemperature,
	})
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			return fallbackWith("busy", err)
		}
		return fallbackWith(ai.Kind(err), err)
	}
	suggestion, err := ParseSQLSuggestion(text)
	if err != nil {
		return fallbackWith(ai.Kind(err), err)
	}
	return suggestion, SourceLLM, nil
}

func (s *Service) complete(ctx context.Context, jobType worker.JobType, req ai.Request) (string, error) {
	if s.gateway == nil {
		return "", &ai.GatewayError{Kind: ai.ErrUnconfigured, Provider: "none"}
	}
	if s.runner == nil {
		return s.gateway.Complete(ctx, req)
	}
	return s.runner.Submit(ctx, jobType, func(ctx context.Context) (string, error) {
		return s.gateway.Complete(ctx, req)
	})
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseSQLSuggestion makes one attempt at reading {sqlQuery, description}
// from a model reply, tolerating code fences around the object and the
// "sql" key as an alias.
func ParseSQLSuggestion(text string) (models.SQLSuggestion, error) {
	raw := strings.TrimSpace(text)
	if m := jsonObject.FindString(raw); m != "" {
		raw = m
	}
	var payload struct {
		SQLQuery    string `json:"sqlQuery"`
		SQL         string `json:"sql"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return models.SQLSuggestion{}, &ai.GatewayError{Kind: ai.ErrMalformedResponse, Err: err}
	}
	query := strings.TrimSpace(payload.SQLQuery)
	if query == "" {
		query = strings.TrimSpace(payload.SQL)
	}
	if query == "" {
		return models.SQLSuggestion{}, &ai.GatewayError{Kind: ai.ErrMalformedResponse, Err: errors.New("reply has no sqlQuery")}
	}
	desc := strings.TrimSpace(payload.Description)
	if desc == "" {
		desc = prompt.DefaultSQLDescription
	}
	return models.SQLSuggestion{SQLQuery: query, Description: desc}, nil
}
