package color

import "teamcal/internal/model"

// Palette is assigned round robin to owners configured without a color.
var Palette = []string{
	model.DefaultOwnerColor,
	"#e68619",
	"#0b6a0b",
	"#8764b8",
	"#c03434",
	"#00a4a4",
	"#d83b01",
	"#107c10",
	"#5c2d91",
	"#a4262c",
}

// PaletteAt returns the palette entry for the i-th owner.
func PaletteAt(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}
