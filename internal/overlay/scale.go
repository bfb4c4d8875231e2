// Package overlay edits the positioned fields a template stamps onto its PDF.
//
// Overlays are stored in unscaled PDF points. The editor canvas draws pages at
// a scale factor, so every position or size coming from the screen is divided
// by the scale before it is stored and multiplied by it when read back.
package overlay

import "math"

// DefaultReferenceWidth is the width of a US Letter page in points.
const DefaultReferenceWidth = 612.0

// MinSize is the smallest width or height an overlay can be stored with.
const MinSize = 1.0

// Scale returns the canvas scale for a container of the given width. The
// result is never below 1.
func Scale(containerWidth, referenceWidth float64) float64 {
	if referenceWidth <= 0 {
		referenceWidth = DefaultReferenceWidth
	}
	s := containerWidth / referenceWidth
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 1 {
		return 1
	}
	return s
}

// ToScreen converts a stored value to screen pixels.
func ToScreen(v, scale float64) float64 {
	return v * normalize(scale)
}

// ToStored converts a screen value to stored points.
func ToStored(v, scale float64) float64 {
	return v / normalize(scale)
}

func normalize(scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 1
	}
	return scale
}
