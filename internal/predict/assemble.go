package predict

import (
	"math"

	"github.com/kartoza/somnia/internal/models"
	"github.com/kartoza/somnia/internal/schema"
)

// FeatureArray is a T x F matrix, oldest day first, columns in schema order.
type FeatureArray [][]float64

// Assemble turns exactly SeqLen days into a FeatureArray. Missing values
// become zero and so do NaN and infinite ones.
func Assemble(s *schema.Schema, days []models.DayRecord) (FeatureArray, error) {
	if len(days) != s.SeqLen() {
		return nil, &SequenceLengthError{Expected: s.SeqLen(), Actual: len(days)}
	}

	x := make(FeatureArray, len(days))
	for i := range days {
		x[i] = s.Row(&days[i])
	}
	sanitize(x)
	return x, nil
}

func sanitize(x FeatureArray) {
	for _, row := range x {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[j] = 0
			}
		}
	}
}
