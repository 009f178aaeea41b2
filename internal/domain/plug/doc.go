// Package plug contains core domain types for controlling a single smart plug.
//
// It defines Command (the closed set of actions the CLI can run) and State
// (the snapshot of the plug reported after a refresh).
package plug
