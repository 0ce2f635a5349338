// Package summary turns uploaded spreadsheets into TableSummary values that
// can be embedded in a prompt.
package summary

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"testcasegpt/internal/models"
)

// SampleRowLimit bounds the head preview kept per column.
const SampleRowLimit = 5

// DefaultCacheSize is the number of decoded files remembered by New when no
// size is configured.
const DefaultCacheSize = 128

// Summarizer decodes files and computes summaries. Results are cached by
// content hash, so re-uploading the same bytes skips the decode.
type Summarizer struct {
	cache *lru.Cache[[sha256.Size]byte, []models.TableSummary]
}

// New builds a Summarizer with an LRU cache of cacheSize files. A negative
// size disables caching.
func New(cacheSize int) *Summarizer {
	s := &Summarizer{}
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if cacheSize > 0 {
		cache, err := lru.New[[sha256.Size]byte, []models.TableSummary](cacheSize)
		if err != nil {
			log.Printf("summary cache disabled: %v", err)
		} else {
			s.cache = cache
		}
	}
	return s
}

// Summarize returns one TableSummary per sheet of data, in sheet order. A
// file that cannot be decoded yields a single failed summary instead of an
// error.
func (s *Summarizer) Summarize(fileName string, data []byte) []models.TableSummary {
	var key [sha256.Size]byte
	if s.cache != nil {
		key = cacheKey(fileName, data)
		if cached, ok := s.cache.Get(key); ok {
			return append([]models.TableSummary(nil), cached...)
		}
	}

	tables, err := decode(fileName, data)
	if err != nil {
		log.Printf("summarize %s: %v", fileName, err)
		return []models.TableSummary{models.NewFailedSummary(fileName, err)}
	}
	out := make([]models.TableSummary, 0, len(tables))
	for _, t := range tables {
		out = append(out, summarizeTable(fileName, t))
	}
	if s.cache != nil {
		s.cache.Add(key, out)
	}
	return append([]models.TableSummary(nil), out...)
}

// SummarizeFile reads path and summarizes it under its base name.
func (s *Summarizer) SummarizeFile(path string) []models.TableSummary {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("summarize %s: %v", path, err)
		return []models.TableSummary{models.NewFailedSummary(name, fmt.Errorf("read file: %w", err))}
	}
	return s.Summarize(name, data)
}

func cacheKey(fileName string, data []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(fileName))
	h.Write([]byte{0})
	h.Write(data)
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))
	return key
}

func summarizeTable(fileName string, t table) models.TableSummary {
	rowCount := len(t.rows)
	summary := models.TableSummary{
		FileName:     fileName,
		SheetName:    t.name,
		Columns:      append([]string{}, t.header...),
		RowCount:     rowCount,
		SampleRows:   make(map[string][]any, len(t.header)),
		DataTypes:    make(map[string]string, len(t.header)),
		NullCounts:   make(map[string]int, len(t.header)),
		UniqueCounts: make(map[string]int, len(t.header)),
	}

	head := rowCount
	if head > SampleRowLimit {
		head = SampleRowLimit
	}
	cells := make([]string, rowCount)
	for i, name := range t.header {
		for r, row := range t.rows {
			cells[r] = row[i]
		}
		col := inferColumn(cells)
		summary.DataTypes[name] = col.label
		summary.NullCounts[name] = col.nulls
		summary.UniqueCounts[name] = len(col.keys)
		if head > 0 {
			summary.SampleRows[name] = append([]any(nil), col.values[:head]...)
		}
		if col.numeric {
			if summary.Statistics == nil {
				summary.Statistics = make(map[string]models.ColumnStats)
			}
			summary.Statistics[name] = describe(col.numbers)
		}
	}
	return summary
}
