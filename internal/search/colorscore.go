package search

import (
	"strconv"
	"strings"
)

// Reference hues in degrees for the chromatic colors.
var hueRefs = map[string]float64{
	"red":    0.0,
	"orange": 30.0,
	"yellow": 55.0,
	"green":  120.0,
	"blue":   220.0,
	"purple": 275.0,
	"brown":  25.0,
}

var achromaticColors = map[string]bool{
	"white": true,
	"gray":  true,
	"black": true,
}

// ColorScore rates how well a stored HSV signature matches a query color.
// h is in degrees [0,360), s and v in [0,1]; the result is in [0,1]. Unknown
// colors score 0.
func ColorScore(queryColor string, h, s, v float64) float64 {
	color := strings.ToLower(strings.TrimSpace(queryColor))

	h = clamp(h, 0, 360)
	s = clamp(s, 0, 1)
	v = clamp(v, 0, 1)

	if achromaticColors[color] {
		return achromaticScore(color, s, v)
	}
	if _, ok := hueRefs[color]; ok {
		return chromaticScore(color, h, s, v)
	}
	return 0.0
}

// ParseHSV reads an "h,s,v" attribute string.
func ParseHSV(raw string) (h, s, v float64, ok bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = f
	}
	return vals[0], vals[1], vals[2], true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func circularHueDistance(h, ref float64) float64 {
	d := h - ref
	if d < 0 {
		d = -d
	}
	if 360-d < d {
		d = 360 - d
	}
	return d
}

// hueScore decays linearly from 1.0 at 0 degrees to 0.0 at 40 degrees of hue
// distance.
func hueScore(dh float64) float64 {
	if dh >= 40 {
		return 0.0
	}
	return 1.0 - dh/40.0
}

func chromaticSScore(s float64) float64 {
	if s <= 0.05 {
		return 0.0
	}
	if s >= 0.5 {
		return 1.0
	}
	return (s - 0.05) / (0.5 - 0.05)
}

func chromaticVScore(v float64) float64 {
	if v <= 0.1 {
		return 0.0
	}
	if v >= 0.4 {
		return 1.0
	}
	return (v - 0.1) / (0.4 - 0.1)
}

func brownSScore(s float64) float64 {
	// Brown wants moderate saturation: too little is gray, too much is orange.
	switch {
	case s <= 0.1 || s >= 0.9:
		return 0.0
	case s < 0.3:
		return (s - 0.1) / (0.3 - 0.1)
	case s <= 0.7:
		return 1.0
	default:
		return (0.9 - s) / (0.9 - 0.7)
	}
}

func brownVScore(v float64) float64 {
	// Brown is a dark color; high brightness reads as orange.
	switch {
	case v <= 0.1 || v >= 0.8:
		return 0.0
	case v < 0.25:
		return (v - 0.1) / (0.25 - 0.1)
	case v <= 0.6:
		return 1.0
	default:
		return (0.8 - v) / (0.8 - 0.6)
	}
}

func chromaticScore(color string, h, s, v float64) float64 {
	hueComponent := hueScore(circularHueDistance(h, hueRefs[color]))

	if color == "brown" {
		return clamp(hueComponent*brownSScore(s)*brownVScore(v), 0, 1)
	}

	// Lighting shifts S and V a lot on real footage, so average them instead
	// of multiplying; the hue carries most of the signal.
	svComponent := (chromaticSScore(s) + chromaticVScore(v)) / 2.0
	return clamp(hueComponent*svComponent, 0, 1)
}

func whiteScore(s, v float64) float64 {
	var sComponent float64
	switch {
	case s <= 0.1:
		sComponent = 1.0
	case s >= 0.4:
		sComponent = 0.0
	default:
		sComponent = 1.0 - (s-0.1)/(0.4-0.1)
	}

	var vComponent float64
	switch {
	case v <= 0.4:
		vComponent = 0.0
	case v >= 0.7:
		vComponent = 1.0
	default:
		vComponent = (v - 0.4) / (0.7 - 0.4)
	}

	return clamp(sComponent*vComponent, 0, 1)
}

func grayScore(s, v float64) float64 {
	var sComponent float64
	switch {
	case s <= 0:
		sComponent = 1.0
	case s >= 0.4:
		sComponent = 0.0
	default:
		sComponent = 1.0 - s/0.4
	}

	// Triangular around v = 0.5: very dark reads as black, very bright as white.
	var vComponent float64
	switch {
	case v <= 0.2 || v >= 0.9:
		vComponent = 0.0
	case v <= 0.5:
		vComponent = (v - 0.2) / (0.5 - 0.2)
	default:
		vComponent = (0.9 - v) / (0.9 - 0.5)
	}

	return clamp(sComponent*vComponent, 0, 1)
}

func blackScore(v float64) float64 {
	if v <= 0.12 {
		return 1.0
	}
	if v >= 0.50 {
		return 0.0
	}
	return 1.0 - (v-0.12)/(0.50-0.12)
}

func achromaticScore(color string, s, v float64) float64 {
	switch color {
	case "white":
		return whiteScore(s, v)
	case "gray":
		return grayScore(s, v)
	default:
		return blackScore(v)
	}
}
