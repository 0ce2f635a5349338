package models

// SQLSuggestion is the answer of the chat-to-SQL endpoint.
type SQLSuggestion struct {
	SQLQuery    string `json:"sqlQuery"`
	Description string `json:"description"`
}
