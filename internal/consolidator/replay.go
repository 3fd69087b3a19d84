package consolidator

import "fmt"

// Replay applies moves in order to a copy of used and returns the result.
// Replaying a run's moves against its input yields the run's FinalUsed.
func Replay(used []int, moves []Move) ([]int, error) {
	if used == nil {
		return nil, ErrMissingInput
	}

	out := make([]int, len(used))
	copy(out, used)

	for i, m := range moves {
		if m.Amount <= 0 {
			return nil, fmt.Errorf("%w: move %d has non-positive amount %d", ErrInvalidMove, i, m.Amount)
		}
		if m.Source < 0 || m.Source >= len(out) || m.Target < 0 || m.Target >= len(out) {
			return nil, fmt.Errorf("%w: move %d references index outside [0,%d)", ErrInvalidMove, i, len(out))
		}
		if out[m.Source] < m.Amount {
			return nil, fmt.Errorf("%w: move %d takes %d from index [%d] holding %d", ErrInvalidMove, i, m.Amount, m.Source, out[m.Source])
		}
		out[m.Source] -= m.Amount
		out[m.Target] += m.Amount
	}

	return out, nil
}
