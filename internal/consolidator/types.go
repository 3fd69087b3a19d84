package consolidator

import (
	"encoding/json"
	"fmt"
)

// Move is one relocation of Amount units from the drive at Source to the
// drive at Target. Both indices are positions in the caller's input.
type Move struct {
	Source int `json:"source"`
	Amount int `json:"amount"`
	Target int `json:"target"`
}

func (m Move) String() string {
	return fmt.Sprintf("moved %d from index [%d] to index [%d]", m.Amount, m.Source, m.Target)
}

// MoveLog is an append-only, ordered record of moves.
type MoveLog struct {
	entries []Move
}

// Append records a move at the end of the log.
func (l *MoveLog) Append(entry *Move) error {
	if entry == nil {
		return ErrNilMove
	}
	if entry.Amount <= 0 || entry.Source < 0 || entry.Target < 0 || entry.Source == entry.Target {
		return fmt.Errorf("%w: %s", ErrInvalidMove, entry)
	}
	l.entries = append(l.entries, *entry)
	return nil
}

// Entries returns a copy of the recorded moves in insertion order.
func (l *MoveLog) Entries() []Move {
	if l == nil {
		return []Move{}
	}
	out := make([]Move, len(l.entries))
	copy(out, l.entries)
	return out
}

// Size returns the number of recorded moves.
func (l *MoveLog) Size() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// MarshalJSON encodes the log as an array of moves.
func (l *MoveLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// Result is the outcome of a consolidation run. FinalUsed and FinalTotal are
// in the caller's original order; the caller's input slices are left intact.
type Result struct {
	MinimumDrives int
	FinalUsed     []int
	FinalTotal    []int
	Moves         *MoveLog
}

// Consolidator describes the behaviour required from a drive consolidator.
type Consolidator interface {
	Consolidate(used, total []int) (Result, error)
}
