// Package report renders consolidation inputs, results and move logs as text.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
)

// Printer writes human readable consolidation reports.
type Printer struct {
	w    io.Writer
	unit string
	size uint64
}

// NewPrinter creates a Printer. unit names the size of one unit of data, such
// as "MB" or "GiB"; an empty unit prints raw numbers.
func NewPrinter(w io.Writer, unit string) (*Printer, error) {
	p := &Printer{w: w, unit: strings.TrimSpace(unit)}
	if p.unit == "" {
		return p, nil
	}
	size, err := humanize.ParseBytes("1 " + p.unit)
	if err != nil {
		return nil, fmt.Errorf("parse unit %q: %w", unit, err)
	}
	p.size = size
	return p, nil
}

// FormatAmount renders an amount of data in the printer's unit.
func (p *Printer) FormatAmount(amount int) string {
	if p.size == 0 || amount < 0 {
		return fmt.Sprintf("%d", amount)
	}
	bytes := uint64(amount) * p.size
	if strings.Contains(p.unit, "i") {
		return humanize.IBytes(bytes)
	}
	return humanize.Bytes(bytes)
}

// Sequence prints a titled list of values as "{ a, b, c }".
func (p *Printer) Sequence(title string, values []int) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	fmt.Fprintf(p.w, "\n%s:\n{ %s }\n", title, strings.Join(parts, ", "))
}

// Moves prints one line per move. Nothing is printed for an empty log.
func (p *Printer) Moves(log *consolidator.MoveLog) {
	entries := log.Entries()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(p.w, "\nData consolidation log:\n")
	for _, m := range entries {
		fmt.Fprintf(p.w, "Moved %s from index [%d] to index [%d]\n", p.FormatAmount(m.Amount), m.Source, m.Target)
	}
}

// Run prints a complete report for one consolidation run.
func (p *Printer) Run(used, total []int, result consolidator.Result) {
	p.Sequence("Used disk sizes entered", used)
	p.Sequence("Total disk sizes entered", total)
	p.Moves(result.Moves)
	p.Sequence("Re-arranged used disk sizes", result.FinalUsed)
	p.Sequence("Total disk sizes", result.FinalTotal)
	fmt.Fprintf(p.w, "\nReturns: %d\n", result.MinimumDrives)
}
