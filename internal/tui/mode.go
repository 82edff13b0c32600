package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode describes how progress output should be rendered.
type OutputMode int

const (
	// ModeInteractive redraws progress bars and spinners in place.
	ModeInteractive OutputMode = iota
	// ModePlain prints one line per finished stage.
	ModePlain
)

// DetectMode picks ModeInteractive only for real terminals.
func DetectMode(out io.Writer, noProgress bool) OutputMode {
	if noProgress {
		return ModePlain
	}
	if !IsTerminal(out) {
		return ModePlain
	}
	if runtime.GOOS != "windows" {
		term := os.Getenv("TERM")
		if term == "" || strings.EqualFold(term, "dumb") {
			return ModePlain
		}
	}
	return ModeInteractive
}

// IsTerminal reports whether w is a terminal (including Cygwin/MSYS ptys).
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
