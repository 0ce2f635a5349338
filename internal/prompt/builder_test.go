package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testcasegpt/internal/contextstore"
	"testcasegpt/internal/models"
)

// embeddedContext cuts the JSON block back out of a rendered prompt.
func embeddedContext(t *testing.T, prompt, after, before string) string {
	t.Helper()
	start := strings.Index(prompt, after)
	require.GreaterOrEqual(t, start, 0, "missing %q", after)
	rest := prompt[start+len(after):]
	end := strings.Index(rest, before)
	require.GreaterOrEqual(t, end, 0, "missing %q", before)
	return rest[:end]
}

func TestAnalysisEmbedsEveryEntry(t *testing.T) {
	for _, k := range []int{0, 1, 4} {
		store := contextstore.New()
		for i := 0; i < k; i++ {
			store.Append(models.TableSummary{FileName: fmt.Sprintf("f%d.xlsx", i), SheetName: "S", RowCount: i})
		}
		data, err := store.Serialize()
		require.NoError(t, err)

		rendered, err := NewBuilder(0).Analysis(data)
		require.NoError(t, err)

		raw := embeddedContext(t, rendered, "Data Context:\n", "\n\nBased on this data")
		var back []map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &back))
		require.Len(t, back, k)
		for i, item := range back {
			require.Equal(t, fmt.Sprintf("f%d.xlsx", i), item["file"])
		}
	}
}

func TestAnalysisTemplateSections(t *testing.T) {
	rendered, err := NewBuilder(0).Analysis([]byte("[]"))
	require.NoError(t, err)
	for _, section := range []string{
		"## 1. TEST SCENARIOS (5+ scenarios)",
		"## 2. TEST CASES (10+ detailed test cases)",
		"## 3. SQL VALIDATION QUERIES (5+ queries)",
		"## 4. DATA QUALITY CHECKS",
		"## 5. TEST AUTOMATION STRATEGY",
		"## 6. RISK ASSESSMENT",
		"Priority (P1/P2/P3)",
	} {
		require.Contains(t, rendered, section)
	}
}

func TestChatSQLAndFollowUp(t *testing.T) {
	b := NewBuilder(0)
	sqlPrompt, err := b.ChatSQL([]byte(`[{"file":"a"}]`), "count rows by status")
	require.NoError(t, err)
	require.Contains(t, sqlPrompt, `Return a JSON object with fields "sqlQuery" and "description".`)
	require.Contains(t, sqlPrompt, "User request: count rows by status")
	require.Contains(t, sqlPrompt, `[{"file":"a"}]`)

	follow, err := b.FollowUp([]byte(`[]`), "which column is riskiest?")
	require.NoError(t, err)
	require.Contains(t, follow, "Question: which column is riskiest?")
}

func TestOversizedContextFailsLoudly(t *testing.T) {
	b := NewBuilder(16)
	big := []byte(strings.Repeat("x", 17))
	_, err := b.Analysis(big)
	require.True(t, errors.Is(err, ErrContextTooLarge))
	_, err = b.ChatSQL(big, "q")
	require.True(t, errors.Is(err, ErrContextTooLarge))
	_, err = b.FollowUp(big, "q")
	require.True(t, errors.Is(err, ErrContextTooLarge))

	_, err = b.Analysis(big[:16])
	require.NoError(t, err)
}

func TestReport(t *testing.T) {
	plain := Report("analysis body", nil)
	require.Equal(t, "# Excel Data Test Analysis Report\n\nGenerated using AI Analysis\n\n---\n\nanalysis body", plain)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	withQA := Report("analysis body", []models.Message{
		{Role: models.RoleUser, Content: "why?", CreatedAt: at},
		{Role: models.RoleAssistant, Content: "because"},
	})
	require.True(t, strings.HasPrefix(withQA, plain+"\n"))
	require.Contains(t, withQA, "## Follow-up Q&A")
	require.Contains(t, withQA, "### Q: why? (2025-01-02T03:04:05Z)")
	require.Contains(t, withQA, "because\n")
}
