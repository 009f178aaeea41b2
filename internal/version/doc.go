// Package version exposes build metadata for plug-power.
//
// Version, Commit and BuildTime are injected at build time via -ldflags "-X".
package version
