package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a 24-bit RGB colour. Alpha is always treated as opaque.
type Color uint32

const (
	maxColor   Color = 0xFFFFFF
	opaqueMask       = 0xFF000000
)

// DefaultPalette is the set of colours offered for events and day marks.
var DefaultPalette = []Color{
	0xEF5350,
	0xAB47BC,
	0x5C6BC0,
	0x29B6F6,
	0x66BB6A,
	0xFFCA28,
	0xFF7043,
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color(v), nil
}

// ColorFromARGB drops the alpha channel of a stored ARGB value.
func ColorFromARGB(argb int64) Color {
	return Color(uint32(argb) & uint32(maxColor))
}

// ARGB returns the colour as an opaque ARGB integer, the form the store persists.
func (c Color) ARGB() int64 {
	return int64(uint32(c&maxColor) | opaqueMask)
}

// String formats the colour as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c&maxColor))
}

// Validate rejects values wider than 24 bits.
func (c Color) Validate() error {
	if c > maxColor {
		return fmt.Errorf("color %#x exceeds 24 bits", uint32(c))
	}
	return nil
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
