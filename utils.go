package dfvo

import (
	"log"
	"os"
	"sync"

	"golang.org/x/term"
)

// GetTerminalSize returns the terminal dimensions (columns, lines).
// If terminal size cannot be detected, returns the provided defaults.
func GetTerminalSize(defaultCols, defaultLines int) (cols, lines int) {
	if width, height, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		return width, height
	}
	if width, height, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return width, height
	}
	if width, height, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
		return width, height
	}
	return defaultCols, defaultLines
}

// warnedMessages tracks which messages have been warned about (for WarnOnce).
var warnedMessages sync.Map

// WarnOnce prints a warning message only once (thread-safe). Subsequent
// calls with the same message are ignored.
func WarnOnce(message string) {
	if _, loaded := warnedMessages.LoadOrStore(message, true); !loaded {
		log.Printf("WARNING: %s", message)
	}
}

// AnyTrue returns true if any element in the slice is true. Returns false
// for empty slices.
func AnyTrue(values []bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}
