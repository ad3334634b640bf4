package overlay

import "image/color"

// Domain colors are picked by stepping the hue wheel with the golden
// angle so neighbouring domains stay visually distinct at any count.
func domainColor(index int) color.RGBA {
	hue := float64(index) * 137.5
	for hue >= 360 {
		hue -= 360
	}
	return hsv(hue, 0.85, 0.95)
}

// desaturate renders a color in the muted style used while a
// selection is in progress.
func desaturate(c color.RGBA) color.RGBA {
	gray := uint8((uint32(c.R)*299 + uint32(c.G)*587 + uint32(c.B)*114) / 1000)
	return color.RGBA{
		R: uint8((uint32(c.R) + 3*uint32(gray)) / 4),
		G: uint8((uint32(c.G) + 3*uint32(gray)) / 4),
		B: uint8((uint32(c.B) + 3*uint32(gray)) / 4),
		A: 255,
	}
}

var (
	previewColor   = color.RGBA{80, 220, 80, 255}
	detectionColor = color.RGBA{235, 235, 235, 255}
	labelColor     = color.RGBA{255, 255, 255, 255}
)

func hsv(h, s, v float64) color.RGBA {
	c := v * s
	hp := h / 60
	x := c * (1 - abs(mod2(hp)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := v - c
	return color.RGBA{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
		A: 255,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func mod2(v float64) float64 {
	for v >= 2 {
		v -= 2
	}
	return v
}
