package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// NullFloat64 is an optional daily measurement. A JSON null, an empty string
// or an absent key leave it invalid.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat64 holding v.
func Float(v float64) NullFloat64 {
	return NullFloat64{Float64: v, Valid: true}
}

// UnmarshalJSON accepts numbers, null, and quoted numbers. Quoted values may
// spell non-finite floats ("NaN", "Infinity", "-Inf") which plain JSON cannot.
func (nf *NullFloat64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		nf.Float64, nf.Valid = 0, false
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			nf.Float64, nf.Valid = 0, false
			return nil
		}
		f, err := parseFloat(s)
		if err != nil {
			return fmt.Errorf("cannot convert %q to a number", s)
		}
		nf.Float64, nf.Valid = f, true
		return nil
	}

	f, err := parseFloat(string(data))
	if err != nil {
		return fmt.Errorf("cannot convert %s to a number", data)
	}
	nf.Float64, nf.Valid = f, true
	return nil
}

// parseFloat keeps out-of-range literals such as 1e400 as ±Inf.
func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return f, nil
}

// MarshalJSON writes null for missing values and quotes non-finite ones.
func (nf NullFloat64) MarshalJSON() ([]byte, error) {
	if !nf.Valid {
		return []byte("null"), nil
	}
	if math.IsNaN(nf.Float64) || math.IsInf(nf.Float64, 0) {
		return json.Marshal(strconv.FormatFloat(nf.Float64, 'g', -1, 64))
	}
	return json.Marshal(nf.Float64)
}

// DayRecord holds one calendar day of aggregated wearable measurements.
type DayRecord struct {
	HRMean NullFloat64 `json:"hr_mean"`
	HRMin  NullFloat64 `json:"hr_min"`
	HRMax  NullFloat64 `json:"hr_max"`

	SpO2Mean NullFloat64 `json:"spo2_mean"`
	SpO2Min  NullFloat64 `json:"spo2_min"`
	SpO2Max  NullFloat64 `json:"spo2_max"`

	SleepHours NullFloat64 `json:"sleep_hours"`
	SleepScore NullFloat64 `json:"sleep_score"`

	StepsTotal      NullFloat64 `json:"steps_total"`
	ExerciseMinutes NullFloat64 `json:"exercise_minutes"`

	BPSysMean NullFloat64 `json:"bp_sys_mean"`
	BPDiaMean NullFloat64 `json:"bp_dia_mean"`

	StressScore NullFloat64 `json:"stress_score"`
}

// DayField reads one measurement from a DayRecord.
type DayField func(d *DayRecord) NullFloat64

// dayFields maps wire names to accessors. Order matches the default schema.
var dayFields = []struct {
	name string
	get  DayField
}{
	{"hr_mean", func(d *DayRecord) NullFloat64 { return d.HRMean }},
	{"hr_min", func(d *DayRecord) NullFloat64 { return d.HRMin }},
	{"hr_max", func(d *DayRecord) NullFloat64 { return d.HRMax }},
	{"spo2_mean", func(d *DayRecord) NullFloat64 { return d.SpO2Mean }},
	{"spo2_min", func(d *DayRecord) NullFloat64 { return d.SpO2Min }},
	{"spo2_max", func(d *DayRecord) NullFloat64 { return d.SpO2Max }},
	{"sleep_hours", func(d *DayRecord) NullFloat64 { return d.SleepHours }},
	{"steps_total", func(d *DayRecord) NullFloat64 { return d.StepsTotal }},
	{"exercise_minutes", func(d *DayRecord) NullFloat64 { return d.ExerciseMinutes }},
	{"bp_sys_mean", func(d *DayRecord) NullFloat64 { return d.BPSysMean }},
	{"bp_dia_mean", func(d *DayRecord) NullFloat64 { return d.BPDiaMean }},
	{"stress_score", func(d *DayRecord) NullFloat64 { return d.StressScore }},
	{"sleep_score", func(d *DayRecord) NullFloat64 { return d.SleepScore }},
}

// LookupDayField returns the accessor for a wire name.
func LookupDayField(name string) (DayField, bool) {
	for _, f := range dayFields {
		if f.name == name {
			return f.get, true
		}
	}
	return nil, false
}

// DayFieldNames returns every field a DayRecord carries, in default order.
func DayFieldNames() []string {
	names := make([]string, len(dayFields))
	for i, f := range dayFields {
		names[i] = f.name
	}
	return names
}

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	PersonID string      `json:"person_id"`
	Days     []DayRecord `json:"days"`
}

// PredictResponse contains the computed insomnia risk
type PredictResponse struct {
	PersonID     string  `json:"person_id" yaml:"person_id"`
	InsomniaRisk float64 `json:"insomnia_risk" yaml:"insomnia_risk"`
	Message      string  `json:"message" yaml:"message"`
}

// ErrorResponse is returned for rejected requests. Expected and Actual are
// set only for sequence length errors.
type ErrorResponse struct {
	Error    string `json:"error"`
	Expected *int   `json:"expected,omitempty"`
	Actual   *int   `json:"actual,omitempty"`
}
