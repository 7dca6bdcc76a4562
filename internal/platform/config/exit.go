package config

import (
	"fmt"
	"os"
)

// Exitf prints the message to stderr and terminates with status 1. Entry
// points use it for failures that happen before a logger is available.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
