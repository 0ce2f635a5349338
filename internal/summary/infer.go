package summary

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Type labels follow the dataframe vocabulary the prompts were written against.
const (
	typeInt      = "int64"
	typeFloat    = "float64"
	typeBool     = "bool"
	typeDatetime = "datetime64[ns]"
	typeObject   = "object"
)

// nullTokens are cell texts treated as missing values.
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"02-Jan-2006",
}

func isNull(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// column is one typed column of a table.
type column struct {
	label   string
	numeric bool
	nulls   int
	values  []any // JSON-ready cell values, nil for missing
	numbers []float64
	keys    map[string]struct{}
}

// inferColumn assigns a single type to the column: integers without gaps stay
// int64, integers with gaps and decimals become float64, and anything mixed
// falls back to object.
func inferColumn(cells []string) column {
	trimmed := make([]string, len(cells))
	nulls := 0
	allInt, allFloat, allBool, allTime := true, true, true, true
	present := 0
	for i, raw := range cells {
		s := strings.TrimSpace(raw)
		trimmed[i] = s
		if isNull(s) {
			nulls++
			continue
		}
		present++
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
		if allBool && !strings.EqualFold(s, "true") && !strings.EqualFold(s, "false") {
			allBool = false
		}
		if allTime {
			if _, ok := parseTime(s); !ok {
				allTime = false
			}
		}
	}

	col := column{nulls: nulls, values: make([]any, len(cells)), keys: make(map[string]struct{})}
	switch {
	case len(cells) == 0:
		col.label = typeObject
	case present == 0:
		// all missing reads as NaN floats
		col.label, col.numeric = typeFloat, true
	case allInt && nulls == 0:
		col.label, col.numeric = typeInt, true
	case allFloat:
		col.label, col.numeric = typeFloat, true
	case allBool && nulls == 0:
		col.label = typeBool
	case allTime:
		col.label = typeDatetime
	default:
		col.label = typeObject
	}

	for i, s := range trimmed {
		if isNull(s) {
			continue
		}
		switch col.label {
		case typeInt:
			v, _ := strconv.ParseInt(s, 10, 64)
			col.values[i] = v
			col.numbers = append(col.numbers, float64(v))
			col.keys[strconv.FormatInt(v, 10)] = struct{}{}
		case typeFloat:
			v, _ := strconv.ParseFloat(s, 64)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				col.keys[s] = struct{}{}
				continue
			}
			col.values[i] = v
			col.numbers = append(col.numbers, v)
			col.keys[strconv.FormatFloat(v, 'g', -1, 64)] = struct{}{}
		case typeBool:
			v := strings.EqualFold(s, "true")
			col.values[i] = v
			col.keys[strconv.FormatBool(v)] = struct{}{}
		case typeDatetime:
			t, _ := parseTime(s)
			col.values[i] = t.Format("2006-01-02T15:04:05")
			col.keys[strconv.FormatInt(t.UnixNano(), 10)] = struct{}{}
		default:
			col.values[i] = cells[i]
			col.keys[cells[i]] = struct{}{}
		}
	}
	return col
}
