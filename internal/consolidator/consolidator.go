package consolidator

type greedyConsolidator struct{}

// New creates a Consolidator that packs the largest drives first.
func New() Consolidator {
	return &greedyConsolidator{}
}

func (c *greedyConsolidator) Consolidate(used, total []int) (Result, error) {
	return Consolidate(used, total)
}

// Consolidate validates the input, packs the data onto as few drives as the
// greedy strategy allows and reports the drives still holding data together
// with the ordered moves that produced the final layout. On validation
// failure nothing is computed and a *ValidationError is returned.
func Consolidate(used, total []int) (Result, error) {
	if err := Validate(used, total); err != nil {
		return Result{}, err
	}

	view := newIndexedView(used, total)
	moves := pack(view)

	finalUsed := make([]int, view.len())
	finalTotal := make([]int, view.len())
	view.writeBack(finalUsed, finalTotal)

	minimum, err := CountNonEmpty(finalUsed)
	if err != nil {
		return Result{}, err
	}

	return Result{
		MinimumDrives: minimum,
		FinalUsed:     finalUsed,
		FinalTotal:    finalTotal,
		Moves:         moves,
	}, nil
}

// CountNonEmpty returns the number of drives with data on them.
func CountNonEmpty(used []int) (int, error) {
	if used == nil {
		return 0, ErrMissingInput
	}
	count := 0
	for _, u := range used {
		if u != 0 {
			count++
		}
	}
	return count, nil
}
