package media

import (
	"strconv"
	"strings"
)

// Canonical overlay positions.
const (
	PositionTopLeft     = "top-left"
	PositionTop         = "top"
	PositionTopRight    = "top-right"
	PositionLeft        = "left"
	PositionCenter      = "center"
	PositionRight       = "right"
	PositionBottomLeft  = "bottom-left"
	PositionBottom      = "bottom"
	PositionBottomRight = "bottom-right"
)

// TextMargin is the gap in pixels between an anchored overlay and the frame edge.
const TextMargin = 10

type anchor struct{ h, v string }

var positions = map[string]anchor{
	PositionTopLeft:     {"left", "top"},
	PositionTop:         {"center", "top"},
	PositionTopRight:    {"right", "top"},
	PositionLeft:        {"left", "center"},
	PositionCenter:      {"center", "center"},
	PositionRight:       {"right", "center"},
	PositionBottomLeft:  {"left", "bottom"},
	PositionBottom:      {"center", "bottom"},
	PositionBottomRight: {"right", "bottom"},
}

var positionAliases = map[string]string{
	"top-center":    PositionTop,
	"center-left":   PositionLeft,
	"center-right":  PositionRight,
	"bottom-center": PositionBottom,
	"middle":        PositionCenter,
	"centre":        PositionCenter,
}

// NormalizePosition maps user input to one of the nine canonical presets.
// Unknown values become center.
func NormalizePosition(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	if _, ok := positions[s]; ok {
		return s
	}
	if p, ok := positionAliases[s]; ok {
		return p
	}
	return PositionCenter
}

// Anchor returns the horizontal and vertical anchors of a position.
func Anchor(position string) (h, v string) {
	a := positions[NormalizePosition(position)]
	return a.h, a.v
}

// drawtextXY returns drawtext x/y expressions for a position.
func drawtextXY(position string) (x, y string) {
	m := strconv.Itoa(TextMargin)
	h, v := Anchor(position)
	switch h {
	case "left":
		x = m
	case "right":
		x = "w-text_w-" + m
	default:
		x = "(w-text_w)/2"
	}
	switch v {
	case "top":
		y = m
	case "bottom":
		y = "h-text_h-" + m
	default:
		y = "(h-text_h)/2"
	}
	return x, y
}
