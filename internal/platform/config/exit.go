package config

import (
	"fmt"
	"os"
)

// Exitf prints the message to stderr and terminates the process with
// status 1. Entry points call it for unrecoverable startup failures.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
