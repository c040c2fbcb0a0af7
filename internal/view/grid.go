package view

import (
	"time"

	"teamcal/internal/layout"
	"teamcal/internal/model"
)

// Grid is the resolved layout of the visible range.
type Grid struct {
	Mode   string        `json:"mode"`
	Anchor time.Time     `json:"anchor"`
	Range  Range         `json:"range"`
	Rows   int           `json:"rows"`
	Budget int           `json:"budget"`
	Cells  []layout.Cell `json:"cells"`
}

// Weeks splits the cells into rows of seven for month and week views.
func (g Grid) Weeks() [][]layout.Cell {
	var out [][]layout.Cell
	for i := 0; i < len(g.Cells); i += 7 {
		end := min(i+7, len(g.Cells))
		out = append(out, g.Cells[i:end])
	}
	return out
}

// Build buckets events over the visible range and resolves every day with
// the active budget. selectedID marks one event as selected.
func (c *Controller) Build(events []model.VisualEvent, selectedID string) Grid {
	r := c.Range()
	days := layout.Days(r.Start, r.Days(), c.loc)

	if selectedID != "" {
		marked := make([]model.VisualEvent, len(events))
		copy(marked, events)
		for i := range marked {
			marked[i].IsSelected = marked[i].ID == selectedID
		}
		events = marked
	}

	buckets := layout.Buckets(events, days, c.loc)
	if c.mode == Agenda {
		// Agenda lists only days with events.
		kept := buckets[:0]
		for _, b := range buckets {
			if len(b.Events) > 0 {
				kept = append(kept, b)
			}
		}
		buckets = kept
	}

	budget := c.Budget()
	return Grid{
		Mode:   c.mode.String(),
		Anchor: c.anchor,
		Range:  r,
		Rows:   layout.RowsForSpan(len(days)),
		Budget: budget,
		Cells:  layout.ResolveAll(buckets, budget),
	}
}
