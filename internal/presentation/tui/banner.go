package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the InPlace banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"  ___       ___ _                ", "#34d399"},
		{" |_ _|_ __ | _ \\ |__ _ __ ___   ", "#2dd4bf"},
		{"  | || '  \\|  _/ / _` / _/ -_)  ", "#22d3ee"},
		{" |___|_||_|_| |_\\__,_\\__\\___|  ", "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
