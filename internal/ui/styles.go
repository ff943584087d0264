package ui

import "fmt"

// ANSI256 color codes. Channels get stable hues so interleaved event
// streams stay readable.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorError  = 167 // red
)

var channelColors = map[string]int{
	"agents":   114, // green
	"tasks":    74,  // blue
	"messages": 176, // purple
	"memory":   179, // yellow
	"topology": 116, // cyan
	"metrics":  245, // gray
}

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderError returns s in red.
func RenderError(s string) string { return paint(colorError, s) }

// RenderChannel returns name in its assigned channel hue. Unknown names
// fall back to the accent color.
func RenderChannel(name string) string {
	code, ok := channelColors[name]
	if !ok {
		code = colorAccent
	}
	return paint(code, name)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
