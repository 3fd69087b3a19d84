package consolidator

import (
	"fmt"
	"strings"
)

// DefaultMaxCapacity is the largest advised drive size, in units, checked by
// CheckBounds when no limit is configured.
const DefaultMaxCapacity = 1000

// CapacityViolation describes a drive whose used size exceeds its total size.
type CapacityViolation struct {
	Index int `json:"index"`
	Used  int `json:"used"`
	Total int `json:"total"`
}

// ValidationError reports why an input was rejected. Kind is one of
// ErrMissingInput, ErrLengthMismatch or ErrCapacityExceeded and is what
// errors.Is matches against.
type ValidationError struct {
	Kind       error
	UsedLen    int
	TotalLen   int
	Violations []CapacityViolation
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrLengthMismatch:
		return fmt.Sprintf("%v: used has %d elements, total has %d", e.Kind, e.UsedLen, e.TotalLen)
	case ErrCapacityExceeded:
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			parts = append(parts, fmt.Sprintf("index [%d] used %d > total %d", v.Index, v.Used, v.Total))
		}
		return fmt.Sprintf("%v: %s", e.Kind, strings.Join(parts, "; "))
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Indices returns the positions of all drives that exceed their capacity.
func (e *ValidationError) Indices() []int {
	out := make([]int, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Index)
	}
	return out
}

// Validate checks that both sequences are present, have equal length and that
// no drive uses more than its total size. Every offending index is reported.
func Validate(used, total []int) error {
	if used == nil || total == nil {
		return &ValidationError{Kind: ErrMissingInput, UsedLen: len(used), TotalLen: len(total)}
	}
	if len(used) != len(total) {
		return &ValidationError{Kind: ErrLengthMismatch, UsedLen: len(used), TotalLen: len(total)}
	}

	var violations []CapacityViolation
	for i := range used {
		if used[i] > total[i] {
			violations = append(violations, CapacityViolation{Index: i, Used: used[i], Total: total[i]})
		}
	}
	if len(violations) > 0 {
		return &ValidationError{
			Kind:       ErrCapacityExceeded,
			UsedLen:    len(used),
			TotalLen:   len(total),
			Violations: violations,
		}
	}
	return nil
}

// CheckBounds reports inputs that fall outside the advisory problem limits:
// at most maxDrives drives and sizes between 0 and maxCapacity. A zero limit
// disables the corresponding check. It never rejects the input.
func CheckBounds(used, total []int, maxDrives, maxCapacity int) []string {
	var warnings []string
	if len(used) == 0 {
		warnings = append(warnings, "no drives given")
	}
	if maxDrives > 0 && len(used) > maxDrives {
		warnings = append(warnings, fmt.Sprintf("%d drives given, more than the advised %d", len(used), maxDrives))
	}
	for i := range used {
		if used[i] < 0 {
			warnings = append(warnings, fmt.Sprintf("used size %d at index [%d] is negative", used[i], i))
		}
		if i < len(total) && maxCapacity > 0 && total[i] > maxCapacity {
			warnings = append(warnings, fmt.Sprintf("total size %d at index [%d] exceeds %d", total[i], i, maxCapacity))
		}
	}
	return warnings
}
