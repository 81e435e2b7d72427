package display

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

var icons = map[string]Icon{
	"success":  {Unicode: "✔", ASCII: "[OK]", Color: ColorGreen},
	"error":    {Unicode: "✘", ASCII: "[ERR]", Color: ColorRed},
	"warning":  {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":     {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorBlue},
	"full":     {Unicode: "■", ASCII: "[F]", Color: ColorBlue},
	"partial":  {Unicode: "◧", ASCII: "[P]", Color: ColorCyan},
	"schedule": {Unicode: "⏱", ASCII: "[S]", Color: ColorMagenta},
	"arrow":    {Unicode: "→", ASCII: "->", Color: ColorBlue},
	"bullet":   {Unicode: "•", ASCII: "*", Color: ColorWhite},
}

// IconSystem renders icons, falling back to ASCII on terminals without
// Unicode support
type IconSystem struct {
	enabled bool
	unicode bool
}

// NewIconSystem creates an icon system. Disabled systems render nothing.
func NewIconSystem(enabled bool) *IconSystem {
	return &IconSystem{enabled: enabled, unicode: detectUnicodeSupport()}
}

// detectUnicodeSupport checks if the terminal supports Unicode characters
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if term := os.Getenv("TERM"); term == "dumb" || term == "vt100" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// SetUnicodeSupport overrides terminal detection
func (is *IconSystem) SetUnicodeSupport(enabled bool) {
	is.unicode = enabled
}

// Render returns the icon followed by a space, or "" when icons are off
func (is *IconSystem) Render(name string, colors ColorSystem) string {
	if !is.enabled {
		return ""
	}
	icon, ok := icons[name]
	if !ok {
		return ""
	}
	text := icon.ASCII
	if is.unicode {
		text = icon.Unicode
	}
	if colors != nil {
		text = colors.Colorize(text, icon.Color)
	}
	return text + " "
}
