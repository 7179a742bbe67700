// Package xlog centralizes the one-line-per-event logging discipline
// used by the resolution and update engines.
package xlog

import "github.com/pterm/pterm"

// Info logs a routine event: file hit, mirror retry, locally changed
// file skipped, deletion, etc.
func Info(format string, args ...any) {
	pterm.Info.Printf(format+"\n", args...)
}

// Warn logs a recoverable problem: missing archive, mirror disabled,
// failed fetch.
func Warn(format string, args ...any) {
	pterm.Warning.Printf(format+"\n", args...)
}

// Error logs a failure the caller is about to surface as a status.
func Error(format string, args ...any) {
	pterm.Error.Printf(format+"\n", args...)
}

// Success logs a completed operation: file stored, patch up to date.
func Success(format string, args ...any) {
	pterm.Success.Printf(format+"\n", args...)
}

// Hit logs a resolver match, tagging whether it came from a virtual
// JSON source or the on-disk tree, per spec.md §4.D.
func Hit(source string, patchID, fn string) {
	Info("[%s] %s: %s", source, patchID, fn)
}

// Miss logs a resolver miss at chain exhaustion.
func Miss(fn string) {
	Info("miss: %s", fn)
}
