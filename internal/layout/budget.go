package layout

import "math"

// Metrics are the pixel sizes the month budget is derived from.
type Metrics struct {
	// ChromeOffset is the height taken by weekday labels and padding.
	ChromeOffset float64 `yaml:"chrome_offset" json:"chrome_offset" koanf:"chrome_offset"`
	// RowMin and RowMax clamp the per-row height.
	RowMin float64 `yaml:"row_min" json:"row_min" koanf:"row_min"`
	RowMax float64 `yaml:"row_max" json:"row_max" koanf:"row_max"`
	// DayHeader is the date label at the top of each cell.
	DayHeader float64 `yaml:"day_header" json:"day_header" koanf:"day_header"`
	// MoreIndicator is reserved for the "+N more" link.
	MoreIndicator float64 `yaml:"more_indicator" json:"more_indicator" koanf:"more_indicator"`
	ChipHeight    float64 `yaml:"chip_height" json:"chip_height" koanf:"chip_height"`
}

// DefaultMetrics matches the stylesheet served by the web UI.
func DefaultMetrics() Metrics {
	return Metrics{
		ChromeOffset:  32,
		RowMin:        96,
		RowMax:        200,
		DayHeader:     24,
		MoreIndicator: 20,
		ChipHeight:    22,
	}
}

// Normalize replaces unusable values with defaults.
func (m *Metrics) Normalize() {
	d := DefaultMetrics()
	if !(m.ChromeOffset >= 0) {
		m.ChromeOffset = d.ChromeOffset
	}
	if !(m.ChipHeight > 0) {
		m.ChipHeight = d.ChipHeight
	}
	if !(m.RowMin > 0) {
		m.RowMin = d.RowMin
	}
	if !(m.RowMax >= m.RowMin) {
		m.RowMax = math.Max(d.RowMax, m.RowMin)
	}
	if !(m.DayHeader >= 0) {
		m.DayHeader = d.DayHeader
	}
	if !(m.MoreIndicator >= 0) {
		m.MoreIndicator = d.MoreIndicator
	}
}

// RowsForSpan is the number of week rows a span of days occupies.
func RowsForSpan(days int) int {
	rows := int(math.Round(float64(days) / 7))
	if rows < 1 {
		return 1
	}
	return rows
}

// RowHeight is the clamped height of one week row.
func RowHeight(containerHeight float64, rows int, m Metrics) float64 {
	if rows < 1 {
		rows = 1
	}
	h := (containerHeight - m.ChromeOffset) / float64(rows)
	if math.IsNaN(h) || h < m.RowMin {
		return m.RowMin
	}
	if h > m.RowMax {
		return m.RowMax
	}
	return h
}

// MonthBudget is the number of chips that fit inline in a month cell. It
// never drops below 1.
func MonthBudget(containerHeight float64, rows int, m Metrics) int {
	m.Normalize()
	row := RowHeight(containerHeight, rows, m)
	n := int(math.Floor((row - m.DayHeader - m.MoreIndicator) / m.ChipHeight))
	if n < 1 {
		return 1
	}
	return n
}

// Tracker keeps the month budget in step with the latest measurement. Only
// the most recent height and row count matter; intermediate sizes are
// discarded.
type Tracker struct {
	metrics Metrics
	height  float64
	rows    int
	budget  int
}

// NewTracker starts with an assumed height until the first measurement.
func NewTracker(m Metrics, initialHeight float64, rows int) *Tracker {
	m.Normalize()
	t := &Tracker{metrics: m, height: initialHeight, rows: rows}
	t.budget = MonthBudget(t.height, t.rows, t.metrics)
	return t
}

// Observe records a measured container height. Non-positive or NaN heights
// are ignored. It reports whether the budget changed.
func (t *Tracker) Observe(height float64) bool {
	if math.IsNaN(height) || height <= 0 {
		return false
	}
	t.height = height
	return t.recompute()
}

// SetRows records the number of week rows on screen. It reports whether the
// budget changed.
func (t *Tracker) SetRows(rows int) bool {
	if rows < 1 {
		rows = 1
	}
	t.rows = rows
	return t.recompute()
}

func (t *Tracker) recompute() bool {
	b := MonthBudget(t.height, t.rows, t.metrics)
	changed := b != t.budget
	t.budget = b
	return changed
}

// Budget is the current month budget.
func (t *Tracker) Budget() int { return t.budget }

// Height is the last observed container height.
func (t *Tracker) Height() float64 { return t.height }

// Rows is the current number of week rows.
func (t *Tracker) Rows() int { return t.rows }
