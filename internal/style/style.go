// Package style describes the visual frame styles a booth session can be
// composited with, and the static catalog they are chosen from.
package style

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is an opaque RGB color parsed from "#rrggbb" notation.
type Color struct {
	R, G, B uint8
}

// ParseHex parses "#rrggbb" (or "#rgb") into a Color.
func ParseHex(s string) (Color, error) {
	hex := strings.TrimSpace(s)
	if !strings.HasPrefix(hex, "#") {
		return Color{}, fmt.Errorf("color %q must start with #", s)
	}
	hex = hex[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("color %q must have 6 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// MustParseHex is ParseHex for compile-time constants.
func MustParseHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the "#rrggbb" form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ToRGBA returns the color as an opaque color.RGBA.
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// YIQ returns the perceived luminance Y = 0.299R + 0.587G + 0.114B on a 0-255 scale.
func (c Color) YIQ() float64 {
	return (float64(c.R)*299 + float64(c.G)*587 + float64(c.B)*114) / 1000
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Text colors chosen by ContrastColor.
var (
	DarkText  = Color{R: 0x17, G: 0x17, B: 0x17}
	LightText = Color{R: 0xff, G: 0xff, B: 0xff}
)

// contrastThreshold is the YIQ luminance at and above which a background is light.
const contrastThreshold = 128

// ContrastColor picks near-black text for light backgrounds and white text
// for dark ones.
func ContrastColor(background Color) Color {
	if background.YIQ() >= contrastThreshold {
		return DarkText
	}
	return LightText
}

// ContrastHex is ContrastColor for "#rrggbb" input. Anything that does not
// parse falls back to black, matching how the print sheet treats bad input.
func ContrastHex(hex string) string {
	c, err := ParseHex(hex)
	if err != nil {
		return "#000000"
	}
	return ContrastColor(c).Hex()
}

// Overlay is an optional full-surface treatment applied after compositing.
type Overlay int

const (
	// OverlayNone leaves the frame untouched.
	OverlayNone Overlay = iota
	// OverlayVintage applies a low-alpha warm-gray tint.
	OverlayVintage
)

func (o Overlay) String() string {
	switch o {
	case OverlayVintage:
		return "vintage"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Overlay) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Overlay) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "none":
		*o = OverlayNone
	case "vintage":
		*o = OverlayVintage
	default:
		return fmt.Errorf("unknown overlay %q", string(text))
	}
	return nil
}

// Spec is one frame style. It is read-only for the duration of a session.
type Spec struct {
	ID              string  `toml:"id"`
	Name            string  `toml:"name"`
	BorderColor     Color   `toml:"border_color"`
	BorderThickness int     `toml:"border_width"`
	CornerRadius    int     `toml:"border_radius"`
	Overlay         Overlay `toml:"overlay"`
}

// Validate checks the fields that do not depend on output dimensions.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("style id is required")
	}
	if s.BorderThickness < 0 {
		return fmt.Errorf("style %s: border_width must be >= 0", s.ID)
	}
	if s.CornerRadius < 0 {
		return fmt.Errorf("style %s: border_radius must be >= 0", s.ID)
	}
	return nil
}
