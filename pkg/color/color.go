// Package color assigns stable terminal colors to agent names so that
// concurrent agent output stays readable.
package color

import (
	"hash/fnv"
	"os"

	fcolor "github.com/fatih/color"
)

var palette = []fcolor.Attribute{
	fcolor.FgHiRed,
	fcolor.FgHiGreen,
	fcolor.FgHiYellow,
	fcolor.FgHiBlue,
	fcolor.FgHiMagenta,
	fcolor.FgHiCyan,
	fcolor.FgRed,
	fcolor.FgGreen,
	fcolor.FgYellow,
	fcolor.FgBlue,
	fcolor.FgMagenta,
	fcolor.FgCyan,
}

// Enabled reports whether colored output should be produced.
// FORCE_COLOR wins over everything, CI disables color, and otherwise the
// terminal detection of fatih/color applies (NO_COLOR, TERM=dumb, no tty).
func Enabled() bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return !fcolor.NoColor
}

// ForAgent returns the color for the given agent. The same name always maps
// to the same color.
func ForAgent(name string) *fcolor.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	c := fcolor.New(palette[h.Sum32()%uint32(len(palette))])
	if Enabled() {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// Name renders the agent name in its color.
func Name(name string) string {
	return ForAgent(name).Sprint(name)
}

// Prefix renders "[name]" in the agent's color.
func Prefix(name string) string {
	return ForAgent(name).Sprintf("[%s]", name)
}
