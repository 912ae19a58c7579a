package predict

import "fmt"

// SequenceLengthError reports a request whose day count differs from the
// configured sequence length.
type SequenceLengthError struct {
	Expected int
	Actual   int
}

func (e *SequenceLengthError) Error() string {
	return fmt.Sprintf("You must send exactly %d days, got %d", e.Expected, e.Actual)
}
