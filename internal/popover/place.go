// Package popover positions anchored popovers so they never leave the
// viewport, and manages the lifecycle of the single open popover.
package popover

import "math"

// Rect is a screen-space rectangle.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Contains reports whether the point lies inside r (edges included).
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `yaml:"width" json:"width" koanf:"width"`
	Height float64 `yaml:"height" json:"height" koanf:"height"`
}

func (s Size) usable() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsNaN(s.Width) && !math.IsNaN(s.Height) &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Position is the top-left corner of a placed popover.
type Position struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Side tells which side of the anchor the popover ended up on.
type Side string

const (
	SideRight Side = "right"
	SideLeft  Side = "left"
)

// Options tune placement.
type Options struct {
	Gap     float64 `yaml:"gap" json:"gap" koanf:"gap"`
	Padding float64 `yaml:"padding" json:"padding" koanf:"padding"`
	// DefaultSize stands in for content that has not been measured yet.
	DefaultSize Size `yaml:"default_size" json:"default_size" koanf:"default_size"`
}

// DefaultOptions matches the web UI popover.
func DefaultOptions() Options {
	return Options{Gap: 8, Padding: 16, DefaultSize: Size{Width: 320, Height: 240}}
}

// Placement is the computed box.
type Placement struct {
	Position
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Side   Side    `json:"side"`
}

// Rect returns the placed box.
func (p Placement) Rect() Rect {
	return Rect{Left: p.Left, Top: p.Top, Right: p.Left + p.Width, Bottom: p.Top + p.Height}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Place positions content next to anchor inside viewport. It prefers the
// right side, then the left side, then whichever side has more room, clamped
// to the padded viewport. Vertically it starts level with the anchor and
// shifts up just enough to fit. Content that cannot fit the padded viewport
// is shrunk, so the result always lies within [padding, viewport-padding].
func Place(anchor Rect, content Size, viewport Size, opts Options) Placement {
	def := DefaultOptions()
	if !(opts.Padding >= 0) {
		opts.Padding = def.Padding
	}
	if !(opts.Gap >= 0) {
		opts.Gap = def.Gap
	}
	if !opts.DefaultSize.usable() {
		opts.DefaultSize = def.DefaultSize
	}
	if !content.usable() {
		content = opts.DefaultSize
	}
	if !viewport.usable() {
		viewport = Size{Width: content.Width + 2*opts.Padding, Height: content.Height + 2*opts.Padding}
	}
	pad := opts.Padding
	// Padding wider than half the viewport leaves a zero-size band.
	pad = math.Min(pad, viewport.Width/2)
	pad = math.Min(pad, viewport.Height/2)

	anchor = Rect{Left: finite(anchor.Left), Top: finite(anchor.Top), Right: finite(anchor.Right), Bottom: finite(anchor.Bottom)}

	w := math.Min(content.Width, viewport.Width-2*pad)
	h := math.Min(content.Height, viewport.Height-2*pad)

	minX, maxX := pad, viewport.Width-w-pad
	minY, maxY := pad, viewport.Height-h-pad

	p := Placement{Width: w, Height: h}

	right := anchor.Right + opts.Gap
	left := anchor.Left - w - opts.Gap
	switch {
	case right >= minX && right <= maxX:
		p.Left, p.Side = right, SideRight
	case left >= minX && left <= maxX:
		p.Left, p.Side = left, SideLeft
	default:
		roomRight := viewport.Width - anchor.Right
		roomLeft := anchor.Left
		if roomRight >= roomLeft {
			p.Left, p.Side = clamp(right, minX, maxX), SideRight
		} else {
			p.Left, p.Side = clamp(left, minX, maxX), SideLeft
		}
	}

	top := anchor.Top
	if top+h > viewport.Height-pad {
		top = viewport.Height - pad - h
	}
	p.Top = clamp(top, minY, maxY)
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
