// Package contextstore keeps the ordered, append-only list of table
// summaries that grounds every prompt.
package contextstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"testcasegpt/internal/models"
)

// Store is safe for concurrent use. Entries are never removed or replaced.
type Store struct {
	mu    sync.RWMutex
	items []models.TableSummary
}

func New() *Store {
	return &Store{}
}

// Append adds summaries to the end in the given order and reports how many
// were added and the new total.
func (s *Store) Append(summaries ...models.TableSummary) (added, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, summaries...)
	return len(summaries), len(s.items)
}

// All returns a snapshot of every entry in insertion order.
func (s *Store) All() []models.TableSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TableSummary, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Serialize renders a snapshot as an indented JSON array.
func (s *Store) Serialize() ([]byte, error) {
	return Serialize(s.All())
}

// Serialize renders summaries the way the store does, for callers holding a
// snapshot already.
func Serialize(summaries []models.TableSummary) ([]byte, error) {
	if summaries == nil {
		summaries = []models.TableSummary{}
	}
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize context: %w", err)
	}
	return data, nil
}
