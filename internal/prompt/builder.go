// Package prompt renders the data context into the fixed instruction
// templates sent to the language model.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"testcasegpt/internal/models"
)

// ErrContextTooLarge is returned instead of truncating a context that would
// not fit the configured limit.
var ErrContextTooLarge = errors.New("data context exceeds prompt limit")

// DefaultMaxContextBytes caps the serialized context embedded in one prompt.
const DefaultMaxContextBytes = 1 << 20

// Sampling parameters per prompt kind.
const (
	AnalysisMaxTokens     = 3000
	AnalysisTemperature   = 0.7
	ChatSQLMaxTokens      = 600
	ChatSQLTemperature    = 0.3
	FollowUpMaxTokens     = 1000
	FollowUpTemperature   = 0.7
	DefaultSQLDescription = "Suggested SQL."
)

const (
	AnalysisSystem = "You are a Senior QA Engineer expert in test design, data validation, and quality assurance. Provide detailed, practical testing strategies."
	ChatSQLSystem  = "Return only JSON with sqlQuery and description."
	FollowUpSystem = "You are a QA expert. Answer questions about testing and data quality based on the provided context."
)

const analysisTemplate = `You are a Senior QA Engineer analyzing Excel data specifications for comprehensive testing.

Data Context:
%s

Based on this data, provide a detailed test analysis including:

## 1. TEST SCENARIOS (5+ scenarios)
For each scenario provide:
- Scenario Name
- Description
- Business Value
- Risk Level (High/Medium/Low)

## 2. TEST CASES (10+ detailed test cases)
For each test case provide:
- Test ID
- Test Name
- Objective
- Prerequisites
- Test Steps (numbered)
- Expected Results
- Test Data Required
- Priority (P1/P2/P3)

## 3. SQL VALIDATION QUERIES (5+ queries)
Provide SQL queries for:
- Data integrity checks
- Referential integrity validation
- Data quality verification
- Performance testing
- Edge case validation

## 4. DATA QUALITY CHECKS
Identify:
- Potential data quality issues
- Missing data patterns
- Data validation rules needed
- Data cleansing requirements

## 5. TEST AUTOMATION STRATEGY
Recommend:
- Which tests to automate
- Testing framework suggestions
- CI/CD integration approach
- Test data management strategy

## 6. RISK ASSESSMENT
Identify:
- Critical data risks
- Potential failure points
- Mitigation strategies

Please provide detailed, actionable recommendations specific to the data structure provided.
`

const chatSQLTemplate = `You are a Senior QA Engineer. Use the following Data Context (summaries of uploaded Excel sheets) to answer.
Return a JSON object with fields "sqlQuery" and "description".

Data Context:
%s

User request: %s
Format strictly as JSON.
`

const followUpTemplate = `Data Context:
%s

Question: %s

Please provide a detailed answer based on the data context.
`

// Builder renders prompts. The zero value enforces DefaultMaxContextBytes.
type Builder struct {
	MaxContextBytes int
}

func NewBuilder(maxContextBytes int) *Builder {
	return &Builder{MaxContextBytes: maxContextBytes}
}

func (b *Builder) limit() int {
	if b == nil || b.MaxContextBytes <= 0 {
		return DefaultMaxContextBytes
	}
	return b.MaxContextBytes
}

func (b *Builder) check(context []byte) error {
	if len(context) > b.limit() {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrContextTooLarge, len(context), b.limit())
	}
	return nil
}

// Analysis embeds the serialized context into the six-section test analysis
// template.
func (b *Builder) Analysis(context []byte) (string, error) {
	if err := b.check(context); err != nil {
		return "", err
	}
	return fmt.Sprintf(analysisTemplate, context), nil
}

// ChatSQL asks for a single JSON object answering message.
func (b *Builder) ChatSQL(context []byte, message string) (string, error) {
	if err := b.check(context); err != nil {
		return "", err
	}
	return fmt.Sprintf(chatSQLTemplate, context, message), nil
}

// FollowUp asks a free-form question about the context.
func (b *Builder) FollowUp(context []byte, question string) (string, error) {
	if err := b.check(context); err != nil {
		return "", err
	}
	return fmt.Sprintf(followUpTemplate, context, question), nil
}

const reportHeader = "# Excel Data Test Analysis Report\n\nGenerated using AI Analysis\n\n---\n\n"

// Report renders the persisted Markdown file: a fixed header followed by the
// analysis verbatim, and the follow-up transcript when there is one.
func Report(analysis string, transcript []models.Message) string {
	var sb strings.Builder
	sb.WriteString(reportHeader)
	sb.WriteString(analysis)
	if len(transcript) == 0 {
		return sb.String()
	}
	if !strings.HasSuffix(analysis, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\n---\n\n## Follow-up Q&A\n")
	for _, msg := range transcript {
		switch msg.Role {
		case models.RoleUser:
			sb.WriteString("\n### Q: ")
			sb.WriteString(strings.TrimSpace(msg.Content))
			if !msg.CreatedAt.IsZero() {
				sb.WriteString(" (" + msg.CreatedAt.Format(time.RFC3339) + ")")
			}
			sb.WriteString("\n\n")
		case models.RoleAssistant:
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
