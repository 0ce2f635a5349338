package models

import (
	"encoding/json"
	"math"
)

// TableSummary describes one sheet of one uploaded file. A summary whose Error
// is set carries only FileName; every other field is left zero.
type TableSummary struct {
	FileName     string                 `json:"file"`
	SheetName    string                 `json:"sheet,omitempty"`
	Columns      []string               `json:"columns,omitempty"`
	RowCount     int                    `json:"num_rows"`
	SampleRows   map[string][]any       `json:"sample_data,omitempty"`
	DataTypes    map[string]string      `json:"data_types,omitempty"`
	NullCounts   map[string]int         `json:"null_counts,omitempty"`
	UniqueCounts map[string]int         `json:"unique_counts,omitempty"`
	Statistics   map[string]ColumnStats `json:"statistics,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// NewFailedSummary records a file that could not be decoded.
func NewFailedSummary(fileName string, err error) TableSummary {
	msg := "unknown decode failure"
	if err != nil {
		msg = err.Error()
	}
	return TableSummary{FileName: fileName, Error: msg}
}

// Failed reports whether s is the error variant.
func (s TableSummary) Failed() bool {
	return s.Error != ""
}

type failedShape struct {
	FileName string `json:"file"`
	Error    string `json:"error"`
}

type tableShape struct {
	FileName     string                 `json:"file"`
	SheetName    string                 `json:"sheet"`
	Columns      []string               `json:"columns"`
	RowCount     int                    `json:"num_rows"`
	SampleRows   map[string][]any       `json:"sample_data"`
	DataTypes    map[string]string      `json:"data_types"`
	NullCounts   map[string]int         `json:"null_counts"`
	UniqueCounts map[string]int         `json:"unique_counts"`
	Statistics   map[string]ColumnStats `json:"statistics,omitempty"`
}

// MarshalJSON emits exactly one of the two shapes so prompt consumers never
// see a half-populated record.
func (s TableSummary) MarshalJSON() ([]byte, error) {
	if s.Failed() {
		return json.Marshal(failedShape{FileName: s.FileName, Error: s.Error})
	}
	shape := tableShape{
		FileName:     s.FileName,
		SheetName:    s.SheetName,
		Columns:      s.Columns,
		RowCount:     s.RowCount,
		SampleRows:   s.SampleRows,
		DataTypes:    s.DataTypes,
		NullCounts:   s.NullCounts,
		UniqueCounts: s.UniqueCounts,
		Statistics:   s.Statistics,
	}
	if shape.Columns == nil {
		shape.Columns = []string{}
	}
	if shape.SampleRows == nil {
		shape.SampleRows = map[string][]any{}
	}
	if shape.DataTypes == nil {
		shape.DataTypes = map[string]string{}
	}
	if shape.NullCounts == nil {
		shape.NullCounts = map[string]int{}
	}
	if shape.UniqueCounts == nil {
		shape.UniqueCounts = map[string]int{}
	}
	return json.Marshal(shape)
}

// ColumnStats holds the descriptive statistics of one numeric column.
// Undefined values (std of a single value, anything over zero values) are NaN
// and are written as null.
type ColumnStats struct {
	Count float64
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

type statsShape struct {
	Count *float64 `json:"count"`
	Mean  *float64 `json:"mean"`
	Std   *float64 `json:"std"`
	Min   *float64 `json:"min"`
	P25   *float64 `json:"25%"`
	P50   *float64 `json:"50%"`
	P75   *float64 `json:"75%"`
	Max   *float64 `json:"max"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func (c ColumnStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsShape{
		Count: finite(c.Count),
		Mean:  finite(c.Mean),
		Std:   finite(c.Std),
		Min:   finite(c.Min),
		P25:   finite(c.P25),
		P50:   finite(c.P50),
		P75:   finite(c.P75),
		Max:   finite(c.Max),
	})
}

func (c *ColumnStats) UnmarshalJSON(data []byte) error {
	var shape statsShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	*c = ColumnStats{
		Count: orNaN(shape.Count),
		Mean:  orNaN(shape.Mean),
		Std:   orNaN(shape.Std),
		Min:   orNaN(shape.Min),
		P25:   orNaN(shape.P25),
		P50:   orNaN(shape.P50),
		P75:   orNaN(shape.P75),
		Max:   orNaN(shape.Max),
	}
	return nil
}
