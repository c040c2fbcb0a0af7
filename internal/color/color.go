// Package color derives legible chip colors from an owner's base color.
package color

import (
	"math"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Text colors returned by TextColorFor.
const (
	Light = "#ffffff"
	Dark  = "#111827"
)

// Luminance thresholds. Owner-colored chips bias toward white text, so the
// light preference only switches to dark text on very light backgrounds.
const (
	preferLightThreshold = 0.75
	standardThreshold    = 0.5
)

var white = colorful.Color{R: 1, G: 1, B: 1}

// Parse accepts six hex digits with an optional leading '#'.
func Parse(hex string) (colorful.Color, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return colorful.Color{}, false
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return colorful.Color{}, false
		}
	}
	c, err := colorful.Hex("#" + strings.ToLower(s))
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}

// Valid reports whether hex is a six-digit RGB color.
func Valid(hex string) bool {
	_, ok := Parse(hex)
	return ok
}

// Luminance is 0.2126 R + 0.7152 G + 0.0722 B over channels in [0,1].
func Luminance(c colorful.Color) float64 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

// TextColorFor picks Light or Dark text for the given background. Malformed
// input yields Light when preferLight is set, Dark otherwise.
func TextColorFor(backgroundHex string, preferLight bool) string {
	c, ok := Parse(backgroundHex)
	if !ok {
		if preferLight {
			return Light
		}
		return Dark
	}
	threshold := standardThreshold
	if preferLight {
		threshold = preferLightThreshold
	}
	if Luminance(c) >= threshold {
		return Dark
	}
	return Light
}

// Lighten moves every channel toward 255 by ratio. Malformed input, and any
// ratio that is not positive, returns hex unchanged; otherwise the result is
// lowercase with a leading '#'.
func Lighten(hex string, ratio float64) string {
	c, ok := Parse(hex)
	if !ok || !(ratio > 0) {
		return hex
	}
	return c.BlendRgb(white, math.Min(ratio, 1)).Clamped().Hex()
}

// Flatten resolves a chip color to an opaque hex value. Hex input is
// normalized; a CSS rgba() color is composited over background, which falls
// back to white when it is not a hex color. Anything else yields "".
func Flatten(css, background string) string {
	if c, ok := Parse(css); ok {
		return c.Hex()
	}
	fg, alpha, ok := parseRGBA(css)
	if !ok {
		return ""
	}
	bg, ok := Parse(background)
	if !ok {
		bg = white
	}
	return bg.BlendRgb(fg, alpha).Clamped().Hex()
}

// parseRGBA reads "rgba(r, g, b, a)" or "rgb(r, g, b)".
func parseRGBA(css string) (colorful.Color, float64, bool) {
	s := strings.ToLower(strings.TrimSpace(css))
	var body string
	switch {
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		body = s[len("rgba(") : len(s)-1]
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		body = s[len("rgb("):len(s)-1] + ",1"
	default:
		return colorful.Color{}, 0, false
	}
	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return colorful.Color{}, 0, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) {
			return colorful.Color{}, 0, false
		}
		v[i] = f
	}
	c := colorful.Color{R: v[0] / 255, G: v[1] / 255, B: v[2] / 255}.Clamped()
	return c, math.Max(0, math.Min(v[3], 1)), true
}

// Normalize lowercases a valid color and adds the leading '#'. Invalid input
// returns fallback.
func Normalize(hex, fallback string) string {
	c, ok := Parse(hex)
	if !ok {
		return fallback
	}
	return c.Hex()
}

func isHexDigit(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'f':
		return true
	case b >= 'A' && b <= 'F':
		return true
	}
	return false
}
