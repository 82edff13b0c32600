// Package version exposes build metadata for felloe.
//
// Version, Commit and BuildTime are injected with -ldflags -X and default to
// development values.
package version
