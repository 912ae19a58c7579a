// Package schema defines the ordered daily features and window length the
// risk model was trained on.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kartoza/somnia/internal/models"
)

// DefaultSeqLen is the number of days in a prediction window.
const DefaultSeqLen = 21

// DefaultFeatureNames is the canonical column order used during training.
var DefaultFeatureNames = []string{
	"hr_mean",
	"hr_min",
	"hr_max",
	"spo2_mean",
	"spo2_min",
	"spo2_max",
	"sleep_hours",
	"steps_total",
	"exercise_minutes",
	"bp_sys_mean",
	"bp_dia_mean",
	"stress_score",
	"sleep_score",
}

// Missing is substituted for absent and non-finite measurements.
const Missing = 0.0

// Schema is immutable once built and safe for concurrent use.
type Schema struct {
	names  []string
	index  map[string]int
	fields []models.DayField
	seqLen int
}

// New validates names and seqLen and binds each name to a DayRecord field.
func New(names []string, seqLen int) (*Schema, error) {
	if len(names) == 0 {
		return nil, errors.New("feature list is empty")
	}
	if seqLen < 1 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", seqLen)
	}

	s := &Schema{
		names:  make([]string, len(names)),
		index:  make(map[string]int, len(names)),
		fields: make([]models.DayField, len(names)),
		seqLen: seqLen,
	}

	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", name)
		}
		get, ok := models.LookupDayField(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q (day records carry %s)",
				name, strings.Join(models.DayFieldNames(), ", "))
		}
		s.names[i] = name
		s.index[name] = i
		s.fields[i] = get
	}

	return s, nil
}

// Default returns the 13-feature, 21-day training schema.
func Default() *Schema {
	s, err := New(DefaultFeatureNames, DefaultSeqLen)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns a copy of the feature names in column order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of features.
func (s *Schema) Len() int { return len(s.names) }

// SeqLen returns the required number of days.
func (s *Schema) SeqLen() int { return s.seqLen }

// Index returns the column of a feature.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Row reads a day in column order. Absent values become Missing; values
// that are present are copied as-is, non-finite ones included.
func (s *Schema) Row(d *models.DayRecord) []float64 {
	row := make([]float64, len(s.fields))
	for j, get := range s.fields {
		if v := get(d); v.Valid {
			row[j] = v.Float64
		} else {
			row[j] = Missing
		}
	}
	return row
}

// Equal reports whether names lists the same features in the same order.
func (s *Schema) Equal(names []string) bool {
	if len(names) != len(s.names) {
		return false
	}
	for i, n := range names {
		if n != s.names[i] {
			return false
		}
	}
	return true
}
