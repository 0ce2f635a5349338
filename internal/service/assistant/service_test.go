package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"testcasegpt/internal/prompt"
	"testcasegpt/internal/service/ai"
	"testcasegpt/internal/service/fallback"
	"testcasegpt/internal/worker"
)

type fakeCompleter struct {
	mu         sync.Mutex
	configured bool
	reply      string
	err        error
	requests   []ai.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeCompleter) Provider() string {
	if !f.configured {
		return "none"
	}
	return "groq"
}

func (f *fakeCompleter) Model() string {
	if !f.configured {
		return ""
	}
	return "llama-test"
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type busyRunner struct{}

func (busyRunner) Submit(context.Context, worker.JobType, func(context.Context) (string, error)) (string, error) {
	return "", worker.ErrDispatcherBusy
}

const ordersCSV = "id,amount\n1,10\n2,20\n3,30\n"

func newTestService(gw Completer) *Service {
	return NewService(Options{Gateway: gw})
}

func loaded(t *testing.T, gw Completer) *Service {
	t.Helper()
	svc := newTestService(gw)
	added, total := svc.Ingest([]Upload{{Name: "orders.csv", Data: []byte(ordersCSV)}})
	require.Equal(t, 1, added)
	require.Equal(t, 1, total)
	return svc
}

func TestIngestAppendsInUploadOrder(t *testing.T) {
	svc := newTestService(&fakeCompleter{})
	added, total := svc.Ingest([]Upload{
		{Name: "a.csv", Data: []byte("x\n1\n")},
		{Name: "broken.bin", Data: []byte("not a sheet")},
		{Name: "b.csv", Data: []byte("y\n2\n")},
	})
	require.Equal(t, 3, added)
	require.Equal(t, 3, total)

	items := svc.Context()
	require.Equal(t, "a.csv", items[0].FileName)
	require.True(t, items[1].Failed())
	require.Equal(t, "b.csv", items[2].FileName)

	_, total = svc.Ingest([]Upload{{Name: "a.csv", Data: []byte("x\n1\n")}})
	require.Equal(t, 4, total, "duplicates are kept")
}

func TestStatus(t *testing.T) {
	svc := newTestService(&fakeCompleter{})
	st := svc.Status()
	require.Equal(t, "none", st.Provider)
	require.Empty(t, st.Model)
	require.Zero(t, st.ContextItems)

	svc = loaded(t, &fakeCompleter{configured: true})
	st = svc.Status()
	require.Equal(t, "groq", st.Provider)
	require.Equal(t, "llama-test", st.Model)
	require.Equal(t, 1, st.ContextItems)
}

func TestAnalyzeEmptyContext(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: "x"}
	_, err := newTestService(gw).Analyze(context.Background())
	require.ErrorIs(t, err, ErrEmptyContext)
	require.Zero(t, gw.calls())
}

func TestAnalyzeSendsContextInPrompt(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: "## 1. DATA STRUCTURE ANALYSIS"}
	svc := loaded(t, gw)

	text, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, gw.reply, text)
	require.Len(t, gw.requests, 1)

	req := gw.requests[0]
	require.Equal(t, prompt.AnalysisSystem, req.System)
	require.Equal(t, prompt.AnalysisMaxTokens, req.MaxTokens)
	require.Contains(t, req.Prompt, `"file": "orders.csv"`)
	require.Contains(t, req.Prompt, `"num_rows": 3`)
}

func TestAnalyzePropagatesGatewayError(t *testing.T) {
	gw := &fakeCompleter{configured: true, err: &ai.GatewayError{Kind: ai.ErrAuth, Provider: "groq", Status: 401}}
	_, err := loaded(t, gw).Analyze(context.Background())
	require.ErrorIs(t, err, ai.ErrAuth)
}

func TestAnalyzeContextTooLarge(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: "x"}
	svc := NewService(Options{Gateway: gw, Prompts: prompt.NewBuilder(16)})
	svc.Ingest([]Upload{{Name: "orders.csv", Data: []byte(ordersCSV)}})

	_, err := svc.Analyze(context.Background())
	require.ErrorIs(t, err, prompt.ErrContextTooLarge)
	require.Zero(t, gw.calls())
}

func TestAskValidation(t *testing.T) {
	svc := loaded(t, &fakeCompleter{configured: true})
	_, err := svc.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestAskUsesFollowUpPrompt(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: "Test the boundaries of amount."}
	svc := loaded(t, gw)

	answer, err := svc.Ask(context.Background(), "What boundaries matter?")
	require.NoError(t, err)
	require.Equal(t, gw.reply, answer)
	require.Equal(t, prompt.FollowUpSystem, gw.requests[0].System)
	require.Contains(t, gw.requests[0].Prompt, "What boundaries matter?")
}

func TestChatSQLRejectsEmptyMessage(t *testing.T) {
	_, _, err := newTestService(&fakeCompleter{}).ChatSQL(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestChatSQLFallbackWhenUnconfigured(t *testing.T) {
	gw := &fakeCompleter{}
	svc := loaded(t, gw)

	got, source, err := svc.ChatSQL(context.Background(), "count rows")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, source)
	require.Equal(t, fallback.New(nil).Respond("count rows"), got)
	require.Zero(t, gw.calls(), "unconfigured gateway must not be called")
}

func TestChatSQLFallbackOnEmptyContext(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: `{"sqlQuery":"SELECT 1"}`}
	_, source, err := newTestService(gw).ChatSQL(context.Background(), "show all records")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, source)
	require.Zero(t, gw.calls())
}

func TestChatSQLUsesModelReply(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: "```json\n{\"sqlQuery\": \"SELECT SUM(amount) FROM orders\", \"description\": \"Total amount.\"}\n```"}
	svc := loaded(t, gw)

	got, source, err := svc.ChatSQL(context.Background(), "total amount?")
	require.NoError(t, err)
	require.Equal(t, SourceLLM, source)
	require.Equal(t, "SELECT SUM(amount) FROM orders", got.SQLQuery)
	require.Equal(t, "Total amount.", got.Description)
	require.Equal(t, prompt.ChatSQLSystem, gw.requests[0].System)
	require.Equal(t, prompt.ChatSQLMaxTokens, gw.requests[0].MaxTokens)
}

func TestChatSQLFallsBackOnFailures(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"auth":      {configured: true, err: &ai.GatewayError{Kind: ai.ErrAuth, Status: 401}},
		"transport": {configured: true, err: &ai.GatewayError{Kind: ai.ErrTransport, Err: errors.New("dial")}},
		"garbage":   {configured: true, reply: "I cannot help with that."},
		"no query":  {configured: true, reply: `{"description": "nothing"}`},
	}
	for name, gw := range cases {
		t.Run(name, func(t *testing.T) {
			got, source, err := loaded(t, gw).ChatSQL(context.Background(), "find duplicate ids")
			require.NoError(t, err)
			require.Equal(t, SourceFallback, source)
			require.Contains(t, got.SQLQuery, "HAVING COUNT(*) > 1")
		})
	}
}

func TestChatSQLFallsBackWhenBusy(t *testing.T) {
	gw := &fakeCompleter{configured: true, reply: `{"sqlQuery":"SELECT 1"}`}
	svc := NewService(Options{Gateway: gw, Runner: busyRunner{}})
	svc.Ingest([]Upload{{Name: "orders.csv", Data: []byte(ordersCSV)}})

	_, source, err := svc.ChatSQL(context.Background(), "average amount")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, source)

	_, err = svc.Analyze(context.Background())
	require.ErrorIs(t, err, worker.ErrDispatcherBusy)
}

func TestServiceRunsThroughDispatcher(t *testing.T) {
	d := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	t.Cleanup(d.Stop)
	gw := &fakeCompleter{configured: true, reply: "analysis"}
	svc := NewService(Options{Gateway: gw, Runner: d})
	svc.Ingest([]Upload{{Name: "orders.csv", Data: []byte(ordersCSV)}})

	text, err := svc.Analyze(worker.WithClient(context.Background(), "127.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, "analysis", text)
}

func TestParseSQLSuggestion(t *testing.T) {
	tests := []struct {
		reply string
		want  string
		desc  string
		ok    bool
	}{
		{`{"sqlQuery":"SELECT 1","description":"one"}`, "SELECT 1", "one", true},
		{`Here you go: {"sql":"SELECT 2"} hope it helps`, "SELECT 2", prompt.DefaultSQLDescription, true},
		{`{"sqlQuery":"  "}`, "", "", false},
		{`not json`, "", "", false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			got, err := ParseSQLSuggestion(tt.reply)
			if !tt.ok {
				require.ErrorIs(t, err, ai.ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.SQLQuery)
			require.Equal(t, tt.desc, got.Description)
			require.False(t, strings.HasPrefix(got.SQLQuery, " "))
		})
	}
}
