// Package fallback answers chat-to-SQL requests from a fixed keyword table
// when no language model answer is available.
package fallback

import (
	"strings"
	"unicode"

	"testcasegpt/internal/models"
)

// Rule maps a trigger keyword set to a canned suggestion.
type Rule struct {
	Triggers    []string
	SQL         string
	Description string
}

// DefaultRules are evaluated in order. The broad listing rule is last so the
// more specific aggregate rules win when a message mentions "records".
var DefaultRules = []Rule{
	{
		Triggers:    []string{"count", "total", "number"},
		SQL:         "SELECT COUNT(*) AS total_records FROM user_data WHERE status = 'active';",
		Description: "Count active records.",
	},
	{
		Triggers:    []string{"average", "avg", "mean"},
		SQL:         "SELECT AVG(amount) AS average_amount FROM user_data WHERE amount > 0;",
		Description: "Average of non-zero amounts.",
	},
	{
		Triggers:    []string{"group", "category", "breakdown"},
		SQL:         "SELECT category, COUNT(*) AS count, SUM(amount) AS total FROM user_data GROUP BY category ORDER BY total DESC;",
		Description: "Group by category with counts and totals.",
	},
	{
		Triggers:    []string{"duplicate", "duplicates"},
		SQL:         "SELECT email, COUNT(*) AS duplicates FROM user_data GROUP BY email HAVING COUNT(*) > 1;",
		Description: "Find duplicate emails.",
	},
	{
		Triggers:    []string{"select", "all", "data", "records"},
		SQL:         "SELECT * FROM user_data ORDER BY created_date DESC;",
		Description: "Retrieve all records ordered by creation date.",
	},
}

// DefaultSuggestion is returned when no rule matches.
var DefaultSuggestion = models.SQLSuggestion{
	SQLQuery:    `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = "user_data";`,
	Description: "Show the structure of the user_data table.",
}

type Responder struct {
	rules []Rule
}

// New returns a Responder over rules, or over DefaultRules when rules is empty.
func New(rules []Rule) *Responder {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Responder{rules: rules}
}

// Respond never fails: the first rule sharing a token with message wins,
// otherwise DefaultSuggestion is returned.
func (r *Responder) Respond(message string) models.SQLSuggestion {
	tokens := tokenize(message)
	for _, rule := range r.rules {
		for _, trigger := range rule.Triggers {
			if _, ok := tokens[trigger]; ok {
				return models.SQLSuggestion{SQLQuery: rule.SQL, Description: rule.Description}
			}
		}
	}
	return DefaultSuggestion
}

func tokenize(message string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}
