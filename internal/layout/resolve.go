package layout

import (
	"fmt"
	"math"
	"time"

	"teamcal/internal/model"
)

// Unlimited is a budget that never overflows.
const Unlimited = math.MaxInt

// Cell is the resolved layout of one day.
type Cell struct {
	Date     time.Time           `json:"date"`
	Inline   []model.VisualEvent `json:"inline"`
	Overflow []model.VisualEvent `json:"overflow"`
}

// HasOverflow reports whether the cell shows a "+N more" indicator.
func (c Cell) HasOverflow() bool {
	return len(c.Overflow) > 0
}

// MoreLabel is the overflow indicator text, or "" when nothing overflows.
func (c Cell) MoreLabel() string {
	if len(c.Overflow) == 0 {
		return ""
	}
	return fmt.Sprintf("+%d more", len(c.Overflow))
}

// Total is the number of events in the cell.
func (c Cell) Total() int {
	return len(c.Inline) + len(c.Overflow)
}

// Resolve splits a bucket at budget. The first budget events stay inline in
// bucket order and the rest overflow in their original relative order. A
// budget below 1 means the cell has no room for chips at all, so every event
// goes behind the indicator.
func Resolve(b DayBucket, budget int) Cell {
	cell := Cell{Date: b.Date, Inline: []model.VisualEvent{}, Overflow: []model.VisualEvent{}}
	k := len(b.Events)
	switch {
	case budget < 1:
		cell.Overflow = append(cell.Overflow, b.Events...)
	case k <= budget:
		cell.Inline = append(cell.Inline, b.Events...)
	default:
		cell.Inline = append(cell.Inline, b.Events[:budget]...)
		cell.Overflow = append(cell.Overflow, b.Events[budget:]...)
	}
	return cell
}

// ResolveAll resolves every bucket with the same budget.
func ResolveAll(buckets []DayBucket, budget int) []Cell {
	cells := make([]Cell, 0, len(buckets))
	for _, b := range buckets {
		cells = append(cells, Resolve(b, budget))
	}
	return cells
}
